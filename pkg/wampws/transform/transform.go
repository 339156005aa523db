// Package transform rewrites, filters and enriches WAMP events before they
// reach a subscriber.
package transform

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amir-yaghoubi/mqttpattern"
)

// Event is an EVENT received from the server on its way to a subscriber.
// Fields holds values extracted from the topic by a pattern match.
type Event struct {
	Ctx     context.Context
	Topic   string
	Payload any
	Fields  map[string]string
}

// EventTransformFunc transforms an event. Returning a nil event drops it and
// stops the pipeline; returning false for the continue flag stops the
// pipeline but keeps the returned event.
type EventTransformFunc func(ev *Event) (*Event, bool)

// SimpleEventTransformFunc transforms only the payload. It gets the fields
// extracted from the topic; returning nil drops the event.
type SimpleEventTransformFunc func(ctx context.Context, payload any, fields map[string]string) any

// ApplyTransforms runs an event through transforms in order. It returns nil
// when the event was dropped, plus whether the pipeline ran to the end.
func ApplyTransforms(ctx context.Context, topic string, payload any, fields map[string]string, transforms []EventTransformFunc) (*Event, bool) {
	current := &Event{
		Ctx:     ctx,
		Topic:   topic,
		Payload: payload,
		Fields:  fields,
	}

	for _, transform := range transforms {
		transformed, continueProcessing := transform(current)
		current = transformed

		if current == nil {
			return nil, false
		}
		if !continueProcessing {
			return current, false
		}
	}

	return current, true
}

// DropTopicPattern drops events whose topics match the MQTT-style pattern.
// WAMP topic URIs are split on "/" like MQTT topics, so
// "http://example.com/debug/#" drops everything under debug.
func DropTopicPattern(pattern string) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if mqttpattern.Matches(pattern, ev.Topic) {
			return nil, false
		}
		return ev, true
	}
}

// DropTopicPrefix drops events whose topics start with prefix.
func DropTopicPrefix(prefix string) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if strings.HasPrefix(ev.Topic, prefix) {
			return nil, false
		}
		return ev, true
	}
}

// AddTopicPrefix prepends prefix to every topic.
func AddTopicPrefix(prefix string) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		modified := *ev
		modified.Topic = prefix + ev.Topic
		return &modified, true
	}
}

// RateLimitByTopic drops events arriving less than minInterval after the
// last event passed for the same topic.
func RateLimitByTopic(minInterval time.Duration) EventTransformFunc {
	var mu sync.Mutex
	lastSent := make(map[string]time.Time)

	return func(ev *Event) (*Event, bool) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if last, exists := lastSent[ev.Topic]; exists && now.Sub(last) < minInterval {
			return nil, false
		}
		lastSent[ev.Topic] = now
		return ev, true
	}
}

// ChainTransforms combines several transforms into one.
func ChainTransforms(transforms ...EventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		current := ev
		for _, transform := range transforms {
			transformed, continueProcessing := transform(current)
			current = transformed

			if current == nil || !continueProcessing {
				return current, continueProcessing
			}
		}
		return current, true
	}
}

// TransformOnPattern applies transform to events whose topic matches the
// MQTT-style pattern, passing the fields extracted by the pattern.
// Non-matching events pass through unchanged.
//
// Example:
//
//	TransformOnPattern("http://example.com/sensor/+device/temp",
//	    func(ctx context.Context, payload any, fields map[string]string) any {
//	        return map[string]any{"device": fields["device"], "celsius": payload}
//	    })
func TransformOnPattern(pattern string, transform SimpleEventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if !mqttpattern.Matches(pattern, ev.Topic) {
			return ev, true
		}

		fields := mqttpattern.Extract(pattern, ev.Topic)
		transformed := transform(ev.Ctx, ev.Payload, fields)
		if transformed == nil {
			return nil, true
		}

		modified := *ev
		modified.Payload = transformed
		modified.Fields = mergeFields(ev.Fields, fields)
		return &modified, true
	}
}

// IfPattern applies transform only when the topic matches pattern.
func IfPattern(pattern string, transform EventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if mqttpattern.Matches(pattern, ev.Topic) {
			return transform(ev)
		}
		return ev, true
	}
}

// IfElsePattern applies ifTransform when the topic matches pattern and
// elseTransform otherwise.
func IfElsePattern(pattern string, ifTransform, elseTransform EventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if mqttpattern.Matches(pattern, ev.Topic) {
			return ifTransform(ev)
		}
		return elseTransform(ev)
	}
}

// ModifyPayload applies transform to every payload.
func ModifyPayload(transform SimpleEventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		fields := ev.Fields
		if fields == nil {
			fields = make(map[string]string)
		}

		transformed := transform(ev.Ctx, ev.Payload, fields)
		if transformed == nil {
			return nil, true
		}

		modified := *ev
		modified.Payload = transformed
		return &modified, true
	}
}

func mergeFields(existing, extracted map[string]string) map[string]string {
	if len(existing) == 0 {
		return extracted
	}
	merged := make(map[string]string, len(existing)+len(extracted))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range extracted {
		merged[k] = v
	}
	return merged
}
