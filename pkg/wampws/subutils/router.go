package subutils

import (
	"context"
	"errors"
	"sync"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
)

type route struct {
	pattern    string
	subscriber wampws.Subscriber
	extract    bool
}

// TopicRouter delivers events to the subscribers whose MQTT-style pattern
// matches the event topic. Topic URIs are split into levels on "/", so
// "http://example.com/sensor/+room/#" matches every sensor event and passes
// the room as the "room" field.
//
// Events no route matches, and all call results and errors, go to the
// fallback subscriber if one is set.
type TopicRouter struct {
	mu       sync.RWMutex
	routes   []route
	fallback wampws.Subscriber
}

func NewTopicRouter() *TopicRouter {
	return &TopicRouter{}
}

// Handle adds a route. Several routes may match one event; each gets it,
// in the order they were added.
func (r *TopicRouter) Handle(pattern string, subscriber wampws.Subscriber) *TopicRouter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{
		pattern:    pattern,
		subscriber: subscriber,
		extract:    mqttpattern.HasExtractions(pattern),
	})
	return r
}

// WithFallback sets the subscriber for unrouted messages.
func (r *TopicRouter) WithFallback(subscriber wampws.Subscriber) *TopicRouter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = subscriber
	return r
}

// Remove deletes every route for pattern and reports whether there were any.
func (r *TopicRouter) Remove(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]route, 0, len(r.routes))
	for _, rt := range r.routes {
		if rt.pattern != pattern {
			kept = append(kept, rt)
		}
	}
	removed := len(kept) != len(r.routes)
	r.routes = kept
	return removed
}

// Patterns returns the routed patterns in order.
func (r *TopicRouter) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	patterns := make([]string, len(r.routes))
	for i, rt := range r.routes {
		patterns[i] = rt.pattern
	}
	return patterns
}

// OnEvent delivers the event to every matching route. Subscriber errors are
// joined; one failing subscriber does not keep the event from the others.
func (r *TopicRouter) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	r.mu.RLock()
	routes := r.routes
	fallback := r.fallback
	r.mu.RUnlock()

	var errs []error
	matched := false
	for _, rt := range routes {
		if !mqttpattern.Matches(rt.pattern, topic) {
			continue
		}
		matched = true

		routeFields := fields
		if rt.extract {
			routeFields = mergeFields(fields, mqttpattern.Extract(rt.pattern, topic))
		}
		if err := rt.subscriber.OnEvent(ctx, topic, payload, routeFields); err != nil {
			errs = append(errs, err)
		}
	}

	if !matched && fallback != nil {
		return fallback.OnEvent(ctx, topic, payload, fields)
	}

	return errors.Join(errs...)
}

func (r *TopicRouter) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	if fallback := r.fallbackSubscriber(); fallback != nil {
		return fallback.OnCallResult(ctx, result)
	}
	return nil
}

func (r *TopicRouter) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	if fallback := r.fallbackSubscriber(); fallback != nil {
		return fallback.OnCallError(ctx, callErr)
	}
	return nil
}

func (r *TopicRouter) fallbackSubscriber() wampws.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
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
