// Package o11y defines the metrics and tracing interfaces the session
// reports through. Implementations live elsewhere (see package otel).
package o11y

import (
	"context"
)

// MetricsProvider hands out the named instruments a session records its
// connects, disconnects and message traffic on.
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider starts spans around session operations such as Connect.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge holds the last value set, e.g. 1 while a session is connected.
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label is a key/value attribute on a measurement or span, such as the
// WAMP message type or the connect stage that failed.
type Label struct {
	Key   string
	Value string
}

type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)
