package wampws

import (
	"context"

	"github.com/tsarna/wampws/pkg/wampws/protocol"
)

// Subscriber receives the messages a session reads from the server.
// fields carries values extracted from the topic by a pattern router and is
// nil otherwise.
type Subscriber interface {
	OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error
	OnCallResult(ctx context.Context, result protocol.CallResult) error
	OnCallError(ctx context.Context, callErr protocol.CallError) error
}

// BaseSubscriber ignores everything. Embed it to implement only the
// callbacks you need.
type BaseSubscriber struct {
}

func (b *BaseSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	return nil
}

func (b *BaseSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	return nil
}

func (b *BaseSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	return nil
}
