package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <url> <topic> <payload>",
	Short: "Publish an event to a topic",
	Long: `Publish an event to a topic on a WAMP server.

The payload is decoded as JSON when possible and sent as a string otherwise.
--exclude and --eligible take WAMP session ids and are only used for PUBLISH.
--event sends a raw EVENT message instead of PUBLISH.

Examples:
  wampws publish ws://localhost:8080/ http://example.com/chat '"hello"'
  wampws publish ws://localhost:8080/ http://example.com/sensors '{"temp": 25.5}'
  wampws publish ws://localhost:8080/ http://example.com/chat hi --exclude 7Ytz3c6Q`,
	Args: cobra.ExactArgs(3),
	RunE: runPublish,
}

var (
	publishTimeout  time.Duration
	publishExclude  []string
	publishEligible []string
	publishAsEvent  bool
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().DurationVar(&publishTimeout, "timeout", 30*time.Second, "total operation timeout")
	publishCmd.Flags().StringSliceVar(&publishExclude, "exclude", nil, "session ids that must not receive the event")
	publishCmd.Flags().StringSliceVar(&publishEligible, "eligible", nil, "only these session ids may receive the event")
	publishCmd.Flags().BoolVar(&publishAsEvent, "event", false, "send an EVENT message instead of PUBLISH")
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	url, topic := args[0], args[1]
	payload := parseValue(args[2])

	logger.Info("Publishing message",
		zap.String("url", url),
		zap.String("topic", topic),
		zap.Any("payload", payload),
		zap.Bool("event", publishAsEvent),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
	defer cancel()

	s, err := connect(ctx, logger, url)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if publishAsEvent {
		err = s.Event(ctx, topic, payload)
	} else {
		err = s.PublishTo(ctx, topic, payload, publishExclude, publishEligible)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Info("Message published successfully", zap.String("topic", topic))

	return nil
}
