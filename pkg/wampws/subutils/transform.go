package subutils

import (
	"context"

	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"github.com/tsarna/wampws/pkg/wampws/transform"
)

// TransformingSubscriber runs events through a transform pipeline before
// passing them to the wrapped subscriber. Call results and errors pass
// through untouched.
//
// Example:
//
//	extract, _ := transform.JqTransform(".reading", logger)
//	sub := subutils.NewTransformingSubscriber(mySubscriber,
//	    transform.DropTopicPattern("http://example.com/debug/#"),
//	    extract,
//	)
type TransformingSubscriber struct {
	wrapped    wampws.Subscriber
	transforms []transform.EventTransformFunc
}

// NewTransformingSubscriber creates a new TransformingSubscriber. A
// transform that drops an event keeps it from the wrapped subscriber.
func NewTransformingSubscriber(wrapped wampws.Subscriber, transforms ...transform.EventTransformFunc) *TransformingSubscriber {
	return &TransformingSubscriber{
		wrapped:    wrapped,
		transforms: transforms,
	}
}

// OnEvent applies the pipeline and forwards the result, if any
func (t *TransformingSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	if len(t.transforms) == 0 {
		return t.wrapped.OnEvent(ctx, topic, payload, fields)
	}

	transformed, _ := transform.ApplyTransforms(ctx, topic, payload, fields, t.transforms)
	if transformed == nil {
		return nil
	}

	return t.wrapped.OnEvent(ctx, transformed.Topic, transformed.Payload, transformed.Fields)
}

// OnCallResult passes through to the wrapped subscriber
func (t *TransformingSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	return t.wrapped.OnCallResult(ctx, result)
}

// OnCallError passes through to the wrapped subscriber
func (t *TransformingSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	return t.wrapped.OnCallError(ctx, callErr)
}
