package subutils

import (
	"context"
	"fmt"

	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingSubscriber wraps another subscriber and logs every callback.
// If the wrapped subscriber is nil, it acts as a standalone logging subscriber.
type LoggingSubscriber struct {
	wrapped  wampws.Subscriber // The subscriber to wrap (can be nil)
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string // Optional name for identification in logs
}

// NewLoggingSubscriber creates a new LoggingSubscriber that wraps another subscriber.
func NewLoggingSubscriber(wrapped wampws.Subscriber, logger *zap.Logger, logLevel zapcore.Level) *LoggingSubscriber {
	return NewNamedLoggingSubscriber(wrapped, logger, logLevel, "LoggingSubscriber")
}

// NewNamedLoggingSubscriber creates a new LoggingSubscriber with a custom name.
func NewNamedLoggingSubscriber(wrapped wampws.Subscriber, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSubscriber{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

// OnEvent logs the event and calls the wrapped subscriber if present
func (l *LoggingSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	l.logger.Log(l.logLevel, "OnEvent called",
		zap.String("subscriber", l.name),
		zap.String("topic", topic),
		zap.String("payload", payloadString(payload)),
		zap.Any("extractedFields", fields),
		zap.Int("fieldCount", len(fields)),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		return l.wrapped.OnEvent(ctx, topic, payload, fields)
	}
	return nil
}

// OnCallResult logs the result and calls the wrapped subscriber if present
func (l *LoggingSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	l.logger.Log(l.logLevel, "OnCallResult called",
		zap.String("subscriber", l.name),
		zap.String("callID", result.CallID),
		zap.String("result", payloadString(result.Result)),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		return l.wrapped.OnCallResult(ctx, result)
	}
	return nil
}

// OnCallError logs the error and calls the wrapped subscriber if present
func (l *LoggingSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	l.logger.Log(l.logLevel, "OnCallError called",
		zap.String("subscriber", l.name),
		zap.String("callID", callErr.CallID),
		zap.String("errorURI", callErr.ErrorURI),
		zap.String("description", callErr.Description),
		zap.Any("details", callErr.Details),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		return l.wrapped.OnCallError(ctx, callErr)
	}
	return nil
}

func payloadString(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", v)
	}
}
