package subutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/protocol"
)

// recordingSubscriber tracks every callback it receives.
type recordingSubscriber struct {
	mu           sync.Mutex
	events       []recordedEvent
	results      []protocol.CallResult
	callErrors   []protocol.CallError
	processDelay time.Duration
	failOn       string
}

type recordedEvent struct {
	topic   string
	payload any
	fields  map[string]string
}

func (r *recordingSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	if r.processDelay > 0 {
		time.Sleep(r.processDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: topic, payload: payload, fields: fields})
	if r.failOn != "" && topic == r.failOn {
		return errors.New("failed on " + topic)
	}
	return nil
}

func (r *recordingSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordingSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callErrors = append(r.callErrors, callErr)
	return nil
}

func (r *recordingSubscriber) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingSubscriber) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}
