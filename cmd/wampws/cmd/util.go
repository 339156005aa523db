package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"github.com/tsarna/wampws/pkg/wampws/session"
	"go.uber.org/zap"
)

// parseValue decodes s as JSON, falling back to the plain string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func parseValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseValue(arg)
	}
	return values
}

// connect builds a session for url and connects it, logging the welcome.
func connect(ctx context.Context, logger *zap.Logger, url string) (*session.Session, error) {
	s, err := newSessionBuilder(logger).WithURL(url).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sessionID, err := s.Connect(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	logger.Info("Connected to WAMP server",
		zap.String("url", url),
		zap.String("session", sessionID),
	)

	return s, nil
}

// printingSubscriber writes each event as "topic<TAB>json" on its own line.
type printingSubscriber struct {
	wampws.BaseSubscriber
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

func newPrintingSubscriber(out io.Writer, logger *zap.Logger) *printingSubscriber {
	return &printingSubscriber{out: out, logger: logger}
}

func (s *printingSubscriber) OnEvent(ctx context.Context, topic string, payload any, fields map[string]string) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Failed to marshal event payload to JSON",
			zap.String("topic", topic),
			zap.Error(err),
		)
		s.println(fmt.Sprintf("%s\t<error marshaling JSON: %v>", topic, err))
		return nil
	}
	s.println(topic + "\t" + string(jsonBytes))
	return nil
}

func (s *printingSubscriber) OnCallResult(ctx context.Context, result protocol.CallResult) error {
	jsonBytes, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("marshaling result of call %s: %w", result.CallID, err)
	}
	s.println(string(jsonBytes))
	return nil
}

func (s *printingSubscriber) OnCallError(ctx context.Context, callErr protocol.CallError) error {
	s.println(callErr.Error())
	return nil
}

func (s *printingSubscriber) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

func stringSliceToAnySlice(strs []string) []any {
	anys := make([]any, len(strs))
	for i, s := range strs {
		anys[i] = s
	}
	return anys
}
