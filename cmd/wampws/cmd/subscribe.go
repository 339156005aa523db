package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsarna/wampws/pkg/wampws"
	"github.com/tsarna/wampws/pkg/wampws/session"
	"github.com/tsarna/wampws/pkg/wampws/subutils"
	"github.com/tsarna/wampws/pkg/wampws/transform"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <url> <topic> [topics...]",
	Short: "Subscribe to topics and print their events",
	Long: `Subscribe to one or more topic URIs and print each event as
"topic<TAB>payload-json" until interrupted.

--match only prints events whose topic matches one of the given
MQTT-style patterns, matched on "/"-separated topic segments. --jq
rewrites each payload with a jq query; $topic and $fields are available
to the query.

Examples:
  wampws subscribe ws://localhost:8080/ http://example.com/chat
  wampws subscribe ws://localhost:8080/ http://example.com/sensors/kitchen http://example.com/sensors/garage \
      --match 'http://example.com/sensors/+room' --jq '{room: $fields.room, temp: .temp}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSubscribe,
}

var subscribeOpts pipelineOptions

func init() {
	rootCmd.AddCommand(subscribeCmd)
	addPipelineFlags(subscribeCmd, &subscribeOpts)
}

// pipelineOptions configures the event pipeline shared by subscribe and run.
type pipelineOptions struct {
	jq        string
	diff      bool
	matches   []string
	queueSize int
}

func addPipelineFlags(cmd *cobra.Command, opts *pipelineOptions) {
	cmd.Flags().StringVar(&opts.jq, "jq", "", "jq query applied to each event payload")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, `replace {"old","new"} payloads with their difference`)
	cmd.Flags().StringArrayVar(&opts.matches, "match", nil, "only print events matching this MQTT-style pattern")
	cmd.Flags().IntVar(&opts.queueSize, "queue", 1024, "events buffered between the reader and the printer")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	url, topics := args[0], args[1:]

	logger.Info("Starting subscription",
		zap.String("url", url),
		zap.Strings("topics", topics),
	)

	subscriber, err := newEventPipeline(cmd.OutOrStdout(), logger, subscribeOpts)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx, logger, url)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	for _, topic := range topics {
		if err := s.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		logger.Info("Subscribed to topic", zap.String("topic", topic))
	}

	return listen(ctx, logger, s, subscriber)
}

// listen runs the session's read loop until ctx is cancelled, which is a
// normal shutdown, or the connection fails.
func listen(ctx context.Context, logger *zap.Logger, s *session.Session, subscriber wampws.Subscriber) error {
	logger.Info("Listening for events... (Press Ctrl+C to exit)")

	err := s.Listen(ctx, subscriber)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown complete")
		return nil
	}
	return err
}

// eventPipeline is the subscriber chain used by subscribe and run.
type eventPipeline struct {
	wampws.Subscriber
	async *subutils.AsyncQueueingSubscriber
}

func (p *eventPipeline) Close() error {
	if p.async == nil {
		return nil
	}
	return p.async.Close()
}

// newEventPipeline builds, from the inside out: the printer, the diff and
// jq transforms, the pattern router, the debug logger and the async queue.
func newEventPipeline(out io.Writer, logger *zap.Logger, opts pipelineOptions) (*eventPipeline, error) {
	var sub wampws.Subscriber = newPrintingSubscriber(out, logger)

	var transforms []transform.EventTransformFunc
	if opts.diff {
		transforms = append(transforms, transform.ModifyPayload(transform.DiffTransform))
	}
	if opts.jq != "" {
		jqTransform, err := transform.JqTransform(opts.jq, logger)
		if err != nil {
			return nil, fmt.Errorf("invalid jq query: %w", err)
		}
		transforms = append(transforms, jqTransform)
	}
	if len(transforms) > 0 {
		sub = subutils.NewTransformingSubscriber(sub, transforms...)
	}

	if len(opts.matches) > 0 {
		router := subutils.NewTopicRouter().WithFallback(&wampws.BaseSubscriber{})
		for _, pattern := range opts.matches {
			router.Handle(pattern, sub)
		}
		sub = router
	}

	sub = subutils.NewNamedLoggingSubscriber(sub, logger, zapcore.DebugLevel, "events")

	pipeline := &eventPipeline{Subscriber: sub}
	if opts.queueSize > 0 {
		pipeline.async = subutils.NewAsyncQueueingSubscriber(sub, opts.queueSize).Start()
		pipeline.Subscriber = pipeline.async
	}

	return pipeline, nil
}
