package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/frame"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"go.uber.org/zap"
)

// Prefix registers a CURIE prefix for uri with the server.
func (s *Session) Prefix(ctx context.Context, prefix, uri string) error {
	return s.send(ctx, protocol.Prefix(prefix, uri))
}

// Call sends a CALL for procURI and returns the generated call id. Results
// arrive asynchronously through ReadMessage or Listen.
func (s *Session) Call(ctx context.Context, procURI string, args ...any) (string, error) {
	callID := s.nextCallID()
	if err := s.send(ctx, protocol.Call(callID, procURI, args...)); err != nil {
		return "", err
	}
	return callID, nil
}

// Publish sends payload to every subscriber of topicURI.
func (s *Session) Publish(ctx context.Context, topicURI string, payload any) error {
	return s.PublishTo(ctx, topicURI, payload, nil, nil)
}

// PublishTo is Publish with explicit exclude and eligible session id lists.
func (s *Session) PublishTo(ctx context.Context, topicURI string, payload any, exclude, eligible []string) error {
	return s.send(ctx, protocol.Publish(topicURI, payload, exclude, eligible))
}

// Event forwards an EVENT message for topicURI.
func (s *Session) Event(ctx context.Context, topicURI string, payload any) error {
	return s.send(ctx, protocol.Event(topicURI, payload))
}

func (s *Session) Subscribe(ctx context.Context, topicURI string) error {
	return s.send(ctx, protocol.Subscribe(topicURI))
}

func (s *Session) Unsubscribe(ctx context.Context, topicURI string) error {
	return s.send(ctx, protocol.Unsubscribe(topicURI))
}

func (s *Session) send(ctx context.Context, msg protocol.Message) error {
	stream, err := s.connectedStream()
	if err != nil {
		return err
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		s.metrics.RecordMessageError(ctx, "encode")
		return err
	}

	data, err := frame.Encode(frame.OpcodeText, payload, true)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer s.applyDeadline(ctx, s.ioTimeout, stream.SetWriteDeadline)()

	if _, err := stream.Write(data); err != nil {
		s.metrics.RecordMessageError(ctx, "write")
		err = contextError(ctx, fmt.Errorf("writing %s message: %w", msg.Type, err))
		s.terminate(stream, err)
		return err
	}

	s.metrics.RecordMessageSent(ctx, len(payload), msg.Type.String())
	s.logger.Debug("Sent WAMP message",
		zap.Stringer("type", msg.Type),
		zap.Int("bytes", len(payload)),
	)

	return nil
}

// ReadMessage blocks until the next WAMP message arrives. Ping and pong
// frames are skipped; a close frame yields ErrConnectionClosed. Cancelling
// ctx interrupts the read.
//
// A message that fails to parse leaves the session connected. Any failure
// at the frame level, including cancellation part way through a frame, ends
// the connection and leaves the session Closed.
func (s *Session) ReadMessage(ctx context.Context) (*protocol.Inbound, error) {
	stream, err := s.connectedStream()
	if err != nil {
		return nil, err
	}

	defer s.applyDeadline(ctx, 0, stream.SetReadDeadline)()

	for {
		f, err := frame.DecodeLimit(stream, s.maxMessageSize)
		if err != nil {
			s.metrics.RecordMessageError(ctx, "read")
			err = contextError(ctx, fmt.Errorf("reading frame: %w", err))
			s.terminate(stream, err)
			return nil, err
		}

		switch {
		case f.Opcode == frame.OpcodeClose:
			s.terminate(stream, ErrConnectionClosed)
			return nil, ErrConnectionClosed
		case f.Opcode.IsControl():
			s.logger.Debug("Ignoring control frame", zap.Stringer("opcode", f.Opcode))
			continue
		case !f.Opcode.IsData() || !f.Fin:
			s.metrics.RecordMessageError(ctx, "fragmented")
			err := fmt.Errorf("%w: fragmented messages are not supported", ErrProtocolViolation)
			s.terminate(stream, err)
			return nil, err
		}

		msg, err := protocol.Parse(f.Payload)
		if err != nil {
			s.metrics.RecordMessageError(ctx, "decode")
			return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}

		s.metrics.RecordMessageReceived(ctx, len(f.Payload), msg.Type.String())
		s.logger.Debug("Received WAMP message",
			zap.Stringer("type", msg.Type),
			zap.Int("bytes", len(f.Payload)),
		)

		return msg, nil
	}
}

// Listen reads messages until ctx is done or the stream fails, handing
// EVENT, CALLRESULT and CALLERROR messages to subscriber. Subscriber errors
// are logged and do not stop the loop.
func (s *Session) Listen(ctx context.Context, subscriber wampws.Subscriber) error {
	for {
		msg, err := s.ReadMessage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		if err := s.dispatch(ctx, subscriber, msg); err != nil {
			s.logger.Warn("Subscriber error",
				zap.Stringer("type", msg.Type),
				zap.Error(err),
			)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, subscriber wampws.Subscriber, msg *protocol.Inbound) error {
	switch msg.Type {
	case protocol.TypeEvent:
		ev, err := msg.Event()
		if err != nil {
			return err
		}
		return subscriber.OnEvent(ctx, ev.TopicURI, ev.Payload, nil)

	case protocol.TypeCallResult:
		result, err := msg.CallResult()
		if err != nil {
			return err
		}
		return subscriber.OnCallResult(ctx, result)

	case protocol.TypeCallError:
		callErr, err := msg.CallError()
		if err != nil {
			return err
		}
		return subscriber.OnCallError(ctx, callErr)

	default:
		s.logger.Warn("Ignoring unexpected WAMP message", zap.Stringer("type", msg.Type))
		return nil
	}
}

// IsClosedError reports whether err means the connection is gone, as
// opposed to a single bad message.
func IsClosedError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, frame.ErrShortRead) ||
		errors.Is(err, ErrNotConnected)
}
