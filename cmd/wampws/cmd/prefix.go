package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// prefixCmd represents the prefix command
var prefixCmd = &cobra.Command{
	Use:   "prefix <url> <prefix> <uri>",
	Short: "Register a CURIE prefix",
	Long: `Send a PREFIX message mapping a short prefix to a URI.

Prefixes only last as long as the session, so this is mostly useful for
checking that a server accepts the message.

Example:
  wampws prefix ws://localhost:8080/ calc http://example.com/simple/calc#`,
	Args: cobra.ExactArgs(3),
	RunE: runPrefix,
}

var prefixTimeout time.Duration

func init() {
	rootCmd.AddCommand(prefixCmd)

	prefixCmd.Flags().DurationVar(&prefixTimeout, "timeout", 30*time.Second, "total operation timeout")
}

func runPrefix(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), prefixTimeout)
	defer cancel()

	s, err := connect(ctx, logger, args[0])
	if err != nil {
		return err
	}
	defer s.Disconnect()

	if err := s.Prefix(ctx, args[1], args[2]); err != nil {
		return fmt.Errorf("failed to register prefix: %w", err)
	}

	logger.Info("Prefix registered", zap.String("prefix", args[1]), zap.String("uri", args[2]))

	return nil
}
