package session

import (
	"context"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/o11y"
)

// SessionMetrics holds the instruments a session reports to.
// A nil *SessionMetrics records nothing.
type SessionMetrics struct {
	// Connection metrics
	connectsTotal   o11y.Counter   // Connect attempts that reached the network
	connectErrors   o11y.Counter   // Failed connects, by stage
	connectDuration o11y.Histogram // Dial + handshake + WELCOME
	connected       o11y.Gauge     // 1 while the session is connected
	disconnects     o11y.Counter

	// Message metrics
	messagesSent     o11y.Counter   // By WAMP message type
	messagesReceived o11y.Counter   // By WAMP message type
	messageSize      o11y.Histogram // Payload bytes, by direction
	messageErrors    o11y.Counter   // Read/write/decode failures
}

// NewSessionMetrics creates the session instruments. A nil provider yields nil.
func NewSessionMetrics(provider o11y.MetricsProvider) *SessionMetrics {
	if provider == nil {
		return nil
	}

	return &SessionMetrics{
		connectsTotal:   provider.Counter("wamp_connects_total"),
		connectErrors:   provider.Counter("wamp_connect_errors_total"),
		connectDuration: provider.Histogram("wamp_connect_duration_seconds"),
		connected:       provider.Gauge("wamp_session_connected"),
		disconnects:     provider.Counter("wamp_disconnects_total"),

		messagesSent:     provider.Counter("wamp_messages_sent_total"),
		messagesReceived: provider.Counter("wamp_messages_received_total"),
		messageSize:      provider.Histogram("wamp_message_size_bytes"),
		messageErrors:    provider.Counter("wamp_message_errors_total"),
	}
}

// RecordConnect records the start of a connect attempt and returns a function
// to record its outcome. stage names where a failure happened.
func (m *SessionMetrics) RecordConnect(ctx context.Context) func(stage string, err error) {
	if m == nil {
		return func(string, error) {}
	}

	start := time.Now()
	m.connectsTotal.Add(ctx, 1)

	return func(stage string, err error) {
		m.connectDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			m.connectErrors.Add(ctx, 1, o11y.Label{Key: "stage", Value: stage})
			return
		}
		m.connected.Set(ctx, 1)
	}
}

func (m *SessionMetrics) RecordDisconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.disconnects.Add(ctx, 1)
	m.connected.Set(ctx, 0)
}

func (m *SessionMetrics) RecordMessageSent(ctx context.Context, sizeBytes int, messageType string) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1, o11y.Label{Key: "type", Value: messageType})
	m.messageSize.Record(ctx, float64(sizeBytes), o11y.Label{Key: "direction", Value: "sent"})
}

func (m *SessionMetrics) RecordMessageReceived(ctx context.Context, sizeBytes int, messageType string) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, o11y.Label{Key: "type", Value: messageType})
	m.messageSize.Record(ctx, float64(sizeBytes), o11y.Label{Key: "direction", Value: "received"})
}

func (m *SessionMetrics) RecordMessageError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.messageErrors.Add(ctx, 1, o11y.Label{Key: "error_type", Value: errorType})
}
