package session

import (
	"fmt"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/endpoint"
	"github.com/tsarna/wampws/pkg/wampws/o11y"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"go.uber.org/zap"
)

const (
	DefaultDialTimeout    = 30 * time.Second
	DefaultMaxMessageSize = 16 << 20
)

// SessionBuilder provides a fluent interface for building sessions.
type SessionBuilder struct {
	url             string
	endpoint        *endpoint.Endpoint
	logger          *zap.Logger
	dial            DialFunc
	dialTimeout     time.Duration
	ioTimeout       time.Duration
	target          string
	validateAccept  bool
	headers         map[string][]string
	maxMessageSize  uint64
	nextCallID      func() string
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

// NewSession creates a new session builder.
func NewSession() *SessionBuilder {
	return &SessionBuilder{
		logger:         zap.NewNop(),
		dial:           DefaultDialer,
		dialTimeout:    DefaultDialTimeout,
		target:         DefaultTarget,
		maxMessageSize: DefaultMaxMessageSize,
		nextCallID:     protocol.NextCallID,
	}
}

// WithURL sets the server endpoint, e.g. "ws://localhost:8080/". It is
// resolved by Build.
func (b *SessionBuilder) WithURL(url string) *SessionBuilder {
	b.url = url
	return b
}

// WithEndpoint sets an already resolved endpoint, taking precedence over WithURL.
func (b *SessionBuilder) WithEndpoint(ep endpoint.Endpoint) *SessionBuilder {
	b.endpoint = &ep
	return b
}

// WithLogger sets the logger for the session.
func (b *SessionBuilder) WithLogger(logger *zap.Logger) *SessionBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithDialer replaces the function used to open the connection.
func (b *SessionBuilder) WithDialer(dial DialFunc) *SessionBuilder {
	if dial != nil {
		b.dial = dial
	}
	return b
}

// WithDialTimeout bounds how long opening the connection may take.
func (b *SessionBuilder) WithDialTimeout(timeout time.Duration) *SessionBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithIOTimeout bounds the handshake and every write. Zero, the default,
// means no timeout beyond the caller's context. Reads are never bounded by it.
func (b *SessionBuilder) WithIOTimeout(timeout time.Duration) *SessionBuilder {
	if timeout >= 0 {
		b.ioTimeout = timeout
	}
	return b
}

// WithTarget sets the default request target used when Connect is given "".
func (b *SessionBuilder) WithTarget(target string) *SessionBuilder {
	if target != "" {
		b.target = target
	}
	return b
}

// WithStrictHandshake enables validation of Sec-WebSocket-Accept.
func (b *SessionBuilder) WithStrictHandshake(strict bool) *SessionBuilder {
	b.validateAccept = strict
	return b
}

// WithHeaders adds custom HTTP headers to the upgrade request.
func (b *SessionBuilder) WithHeaders(headers map[string][]string) *SessionBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	for key, values := range headers {
		b.headers[key] = values
	}
	return b
}

// WithHeader sets a single upgrade request header.
func (b *SessionBuilder) WithHeader(key, value string) *SessionBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[key] = []string{value}
	return b
}

// WithMaxMessageSize caps inbound frame payloads. Default is 16 MiB; sizes
// above frame.MaxPayload are capped there.
func (b *SessionBuilder) WithMaxMessageSize(size uint64) *SessionBuilder {
	if size > 0 {
		b.maxMessageSize = size
	}
	return b
}

// WithCallIDGenerator replaces the process-wide call id generator.
func (b *SessionBuilder) WithCallIDGenerator(next func() string) *SessionBuilder {
	if next != nil {
		b.nextCallID = next
	}
	return b
}

// WithMetricsProvider enables session metrics.
func (b *SessionBuilder) WithMetricsProvider(provider o11y.MetricsProvider) *SessionBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracingProvider enables a span around Connect.
func (b *SessionBuilder) WithTracingProvider(provider o11y.TracingProvider) *SessionBuilder {
	b.tracingProvider = provider
	return b
}

// Build resolves the endpoint and returns a Disconnected session.
// An unresolvable URL fails with endpoint.ErrInvalidEndpoint.
func (b *SessionBuilder) Build() (*Session, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	var ep endpoint.Endpoint
	if b.endpoint != nil {
		ep = *b.endpoint
	} else {
		var err error
		ep, err = endpoint.Resolve(b.url)
		if err != nil {
			return nil, err
		}
	}

	return &Session{
		endpoint:       ep,
		logger:         b.logger.With(zap.String("endpoint", ep.String())),
		dial:           b.dial,
		dialTimeout:    b.dialTimeout,
		ioTimeout:      b.ioTimeout,
		target:         b.target,
		validateAccept: b.validateAccept,
		headers:        b.headers,
		maxMessageSize: b.maxMessageSize,
		nextCallID:     b.nextCallID,
		metrics:        NewSessionMetrics(b.metricsProvider),
		tracing:        b.tracingProvider,
		state:          &disconnectedState{},
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *SessionBuilder) IsValid() error {
	if b.url == "" && b.endpoint == nil {
		return fmt.Errorf("URL is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.dial == nil {
		b.dial = DefaultDialer
	}

	if b.nextCallID == nil {
		b.nextCallID = protocol.NextCallID
	}

	if b.target == "" {
		b.target = DefaultTarget
	}

	return nil
}
