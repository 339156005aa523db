package subutils

import (
	"context"
	"errors"
	"sync"

	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
)

// Error definitions for AsyncQueueingSubscriber
var (
	ErrQueueFull        = errors.New("subscriber queue is full")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

type asyncKind int

const (
	asyncEvent asyncKind = iota
	asyncCallResult
	asyncCallError
)

type asyncMessage struct {
	kind    asyncKind
	ctx     context.Context
	topic   string
	payload any
	fields  map[string]string
	result  protocol.CallResult
	callErr protocol.CallError
}

// AsyncQueueingSubscriber wraps another subscriber and delivers to it from a
// background goroutine through a buffered queue, so a slow subscriber does
// not hold up the session's read loop.
//
// Example:
//
//	async := subutils.NewAsyncQueueingSubscriber(mySubscriber, 100).Start()
//	defer async.Close()
//	err := sess.Listen(ctx, async)
//
// Close must be called to stop the goroutine; queued messages are delivered
// before it returns.
type AsyncQueueingSubscriber struct {
	wrapped   wampws.Subscriber
	queue     chan asyncMessage
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncQueueingSubscriber creates a subscriber with a queue of queueSize
// messages (100 if queueSize is not positive). Call Start to begin delivery.
func NewAsyncQueueingSubscriber(wrapped wampws.Subscriber, queueSize int) *AsyncQueueingSubscriber {
	if queueSize <= 0 {
		queueSize = 100
	}

	return &AsyncQueueingSubscriber{
		wrapped: wrapped,
		queue:   make(chan asyncMessage, queueSize),
		done:    make(chan struct{}),
	}
}

// Start begins processing messages in a background goroutine.
func (a *AsyncQueueingSubscriber) Start() *AsyncQueueingSubscriber {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncQueueingSubscriber) processMessage(msg asyncMessage) {
	switch msg.kind {
	case asyncEvent:
		a.wrapped.OnEvent(msg.ctx, msg.topic, msg.payload, msg.fields)
	case asyncCallResult:
		a.wrapped.OnCallResult(msg.ctx, msg.result)
	case asyncCallError:
		a.wrapped.OnCallError(msg.ctx, msg.callErr)
	}
}

func (a *AsyncQueueingSubscriber) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.queue:
			a.processMessage(msg)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) drainQueue() {
	for {
		select {
		case msg := <-a.queue:
			a.processMessage(msg)
		default:
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) enqueue(msg asyncMessage) error {
	if a.IsClosed() {
		return ErrSubscriberClosed
	}

	select {
	case a.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnEvent queues an event and returns immediately
func (a *AsyncQueueingSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	return a.enqueue(asyncMessage{kind: asyncEvent, ctx: ctx, topic: topic, payload: payload, fields: fields})
}

// OnCallResult queues a call result and returns immediately
func (a *AsyncQueueingSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	return a.enqueue(asyncMessage{kind: asyncCallResult, ctx: ctx, result: result})
}

// OnCallError queues a call error and returns immediately
func (a *AsyncQueueingSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	return a.enqueue(asyncMessage{kind: asyncCallError, ctx: ctx, callErr: callErr})
}

// Close stops the background goroutine after delivering everything queued.
// It is safe to call more than once.
func (a *AsyncQueueingSubscriber) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// QueueSize returns the current number of messages in the queue
func (a *AsyncQueueingSubscriber) QueueSize() int {
	return len(a.queue)
}

// QueueCapacity returns the maximum capacity of the queue
func (a *AsyncQueueingSubscriber) QueueCapacity() int {
	return cap(a.queue)
}

// IsClosed returns true if the subscriber has been closed
func (a *AsyncQueueingSubscriber) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
