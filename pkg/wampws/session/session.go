// Package session implements a WAMP v1 session over a raw WebSocket stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/endpoint"
	"github.com/tsarna/wampws/pkg/wampws/frame"
	"github.com/tsarna/wampws/pkg/wampws/handshake"
	"github.com/tsarna/wampws/pkg/wampws/o11y"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"go.uber.org/zap"
)

var (
	ErrConnectFailed      = errors.New("could not open connection")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrNotConnected       = errors.New("session is not connected")
	ErrSessionClosed      = errors.New("session is closed")
	ErrConnectInProgress  = errors.New("connect already in progress")
	ErrInvalidTarget      = errors.New("invalid target")
	ErrConnectionClosed   = errors.New("server closed the connection")
	errWelcomeNotReceived = errors.New("server did not send a welcome message")
)

const DefaultTarget = "/websocket/"

// ConnectionState is the externally visible lifecycle state of a Session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// state is the internal form of ConnectionState. Each variant only carries
// what is valid in that state: the session id exists only once connected.
type state interface {
	kind() ConnectionState
}

type disconnectedState struct{}

type connectingState struct {
	stream Stream // nil until dialed
}

type connectedState struct {
	stream  Stream
	welcome protocol.Welcome
}

type closedState struct{}

func (*disconnectedState) kind() ConnectionState { return Disconnected }
func (*connectingState) kind() ConnectionState   { return Connecting }
func (*connectedState) kind() ConnectionState    { return Connected }
func (*closedState) kind() ConnectionState       { return Closed }

// Session is a WAMP client session. Create one with NewSession().Build().
//
// A session connects at most once: after Disconnect it is Closed and a new
// Session has to be built to reconnect. Sends may be issued from several
// goroutines; reads (ReadMessage, Listen) must come from one at a time.
type Session struct {
	endpoint       endpoint.Endpoint
	logger         *zap.Logger
	dial           DialFunc
	dialTimeout    time.Duration
	ioTimeout      time.Duration
	target         string
	validateAccept bool
	headers        map[string][]string
	maxMessageSize uint64
	nextCallID     func() string

	metrics *SessionMetrics
	tracing o11y.TracingProvider

	mu    sync.Mutex // guards state
	state state

	writeMu sync.Mutex // serialises frame writes
}

// Endpoint returns the resolved server endpoint.
func (s *Session) Endpoint() endpoint.Endpoint {
	return s.endpoint
}

// State returns the current lifecycle state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.kind()
}

// SessionID returns the id issued by the server, if connected.
func (s *Session) SessionID() (string, bool) {
	w, ok := s.Welcome()
	return w.SessionID, ok
}

// Welcome returns the server's WELCOME details, if connected.
func (s *Session) Welcome() (protocol.Welcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state.(*connectedState); ok {
		return st.welcome, true
	}
	return protocol.Welcome{}, false
}

// Connect opens the stream, performs the WebSocket upgrade for target and
// waits for the server's WELCOME. It returns the session id. Calling it on a
// connected session returns the existing id without touching the network.
// An empty target means DefaultTarget.
func (s *Session) Connect(ctx context.Context, target string) (string, error) {
	s.mu.Lock()
	switch st := s.state.(type) {
	case *connectedState:
		s.mu.Unlock()
		return st.welcome.SessionID, nil
	case *closedState:
		s.mu.Unlock()
		return "", ErrSessionClosed
	case *connectingState:
		s.mu.Unlock()
		return "", ErrConnectInProgress
	}

	if target == "" {
		target = s.target
	}
	if !strings.Contains(target, "/") {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %q must contain a '/'", ErrInvalidTarget, target)
	}

	connecting := &connectingState{}
	s.state = connecting
	s.mu.Unlock()

	if s.tracing != nil {
		var span o11y.Span
		ctx, span = s.tracing.StartSpan(ctx, "wamp.connect")
		defer span.End()
		span.SetAttributes(
			o11y.Label{Key: "endpoint", Value: s.endpoint.String()},
			o11y.Label{Key: "target", Value: target},
		)
		defer func() {
			if id, ok := s.SessionID(); ok {
				span.SetAttributes(o11y.Label{Key: "session_id", Value: id})
				span.SetStatus(o11y.SpanStatusOK, "")
			} else {
				span.SetStatus(o11y.SpanStatusError, "connect failed")
			}
		}()
	}

	recordOutcome := s.metrics.RecordConnect(ctx)

	s.logger.Debug("Connecting to WAMP server",
		zap.String("address", s.endpoint.Address()),
		zap.Bool("encrypted", s.endpoint.Encrypted),
		zap.String("target", target),
	)

	stream, err := s.open(ctx)
	if err != nil {
		s.abandonConnect(connecting)
		recordOutcome("dial", err)
		return "", err
	}

	s.mu.Lock()
	if s.state != state(connecting) {
		s.mu.Unlock()
		stream.Close()
		recordOutcome("dial", ErrSessionClosed)
		return "", ErrSessionClosed
	}
	connecting.stream = stream
	s.mu.Unlock()

	welcome, stage, err := s.negotiate(ctx, stream, target)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != state(connecting) {
		// Disconnect ran while we were negotiating and already closed the stream.
		recordOutcome(stage, ErrSessionClosed)
		return "", ErrSessionClosed
	}

	if err != nil {
		stream.Close()
		s.state = &disconnectedState{}
		recordOutcome(stage, err)
		s.logger.Warn("WAMP connect failed", zap.String("stage", stage), zap.Error(err))
		return "", err
	}

	s.state = &connectedState{stream: stream, welcome: welcome}
	recordOutcome("", nil)

	s.logger.Info("WAMP session established",
		zap.String("session_id", welcome.SessionID),
		zap.Int("protocol_version", welcome.ProtocolVersion),
		zap.String("server", welcome.ServerIdent),
	)

	return welcome.SessionID, nil
}

func (s *Session) open(ctx context.Context) (Stream, error) {
	dialCtx := ctx
	if s.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
	}

	conn, err := s.dial(dialCtx, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %w", ErrConnectFailed, s.endpoint.Address(), err)
	}
	return NewStream(conn), nil
}

// negotiate runs the upgrade handshake and reads the WELCOME frame. The
// returned stage names the step that failed, for metrics and logs.
func (s *Session) negotiate(ctx context.Context, stream Stream, target string) (protocol.Welcome, string, error) {
	defer s.applyDeadline(ctx, s.ioTimeout, stream.SetWriteDeadline)()
	defer s.applyDeadline(ctx, s.ioTimeout, stream.SetReadDeadline)()

	opts := []handshake.Option{handshake.WithAcceptValidation(s.validateAccept)}
	if len(s.headers) > 0 {
		opts = append(opts, handshake.WithHeaders(s.headers))
	}

	if err := handshake.Perform(stream, s.endpoint.HostHeader(), target, opts...); err != nil {
		return protocol.Welcome{}, "handshake", contextError(ctx, err)
	}

	f, err := frame.DecodeLimit(stream, s.maxMessageSize)
	if err != nil {
		return protocol.Welcome{}, "welcome", contextError(ctx, fmt.Errorf("reading welcome frame: %w", err))
	}
	if !f.Opcode.IsData() {
		return protocol.Welcome{}, "welcome", fmt.Errorf("%w: expected a data frame, got %s", ErrProtocolViolation, f.Opcode)
	}

	msg, err := protocol.Parse(f.Payload)
	if err != nil {
		return protocol.Welcome{}, "welcome", fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if msg.Type != protocol.TypeWelcome {
		return protocol.Welcome{}, "welcome", fmt.Errorf("%w: %w, got %s", ErrProtocolViolation, errWelcomeNotReceived, msg.Type)
	}

	welcome, err := msg.Welcome()
	if err != nil {
		return protocol.Welcome{}, "welcome", fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	s.metrics.RecordMessageReceived(ctx, len(f.Payload), msg.Type.String())

	return welcome, "", nil
}

func (s *Session) abandonConnect(connecting *connectingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state(connecting) {
		s.state = &disconnectedState{}
	}
}

// Disconnect closes the stream if one is open and moves the session to
// Closed. It reports whether there was a stream to close, so a second call
// returns false.
func (s *Session) Disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stream Stream
	wasConnected := false
	switch st := s.state.(type) {
	case *connectingState:
		stream = st.stream
	case *connectedState:
		stream = st.stream
		wasConnected = true
	}
	s.state = &closedState{}

	if stream == nil {
		return false
	}

	if err := stream.Close(); err != nil {
		s.logger.Debug("Error closing WAMP stream", zap.Error(err))
	}
	if wasConnected {
		s.metrics.RecordDisconnect(context.Background())
	}
	s.logger.Info("WAMP session disconnected")

	return true
}

// terminate closes a connection whose framing can no longer be trusted, after
// a failed or interrupted frame read or write, or a close frame from the
// server. The session moves to Closed. It does nothing if stream is no longer
// the session's current stream.
func (s *Session) terminate(stream Stream, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state.(*connectedState)
	if !ok || st.stream != stream {
		return
	}
	s.state = &closedState{}

	if err := stream.Close(); err != nil {
		s.logger.Debug("Error closing WAMP stream", zap.Error(err))
	}
	s.metrics.RecordDisconnect(context.Background())
	s.logger.Warn("WAMP connection lost", zap.Error(cause))
}

// connectedStream returns the stream of a connected session.
func (s *Session) connectedStream() (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.state.(type) {
	case *connectedState:
		return st.stream, nil
	case *closedState:
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, ErrSessionClosed)
	default:
		return nil, ErrNotConnected
	}
}

// applyDeadline sets a deadline from ctx and timeout via set, and makes
// cancellation of ctx interrupt a blocked call. The returned func undoes both.
func (s *Session) applyDeadline(ctx context.Context, timeout time.Duration, set func(time.Time) error) func() {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		if d := time.Now().Add(timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		_ = set(deadline)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = set(time.Now())
	})

	return func() {
		if !stop() {
			<-fired
		}
		_ = set(time.Time{})
	}
}

// contextError prefers the context's error when it caused err.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
