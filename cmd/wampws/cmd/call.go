package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/wampws/pkg/wampws/protocol"
	"github.com/tsarna/wampws/pkg/wampws/session"
	"go.uber.org/zap"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call <url> <procedure> [args...]",
	Short: "Call a remote procedure and print its result",
	Long: `Call a remote procedure on a WAMP server and print the result as JSON.

Each argument is decoded as JSON when possible and sent as a string otherwise.
The procedure may be a full URI or a CURIE using a prefix registered with
--prefix.

Examples:
  wampws call ws://localhost:8080/ http://example.com/calc#add 23 99
  wampws call ws://localhost:8080/ --prefix calc=http://example.com/calc# calc:square 5
  wampws call ws://localhost:8080/ http://example.com/echo '{"a": [1, 2]}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCall,
}

var (
	callTimeout  time.Duration
	callPrefixes map[string]string
)

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "how long to wait for the result")
	callCmd.Flags().StringToStringVar(&callPrefixes, "prefix", nil, "register prefix=uri before calling")
}

func runCall(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	url, procURI := args[0], args[1]
	callArgs := parseValues(args[2:])

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	s, err := connect(ctx, logger, url)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	for prefix, uri := range callPrefixes {
		if err := s.Prefix(ctx, prefix, uri); err != nil {
			return fmt.Errorf("failed to register prefix %s: %w", prefix, err)
		}
	}

	callID, err := s.Call(ctx, procURI, callArgs...)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", procURI, err)
	}

	logger.Info("Call sent", zap.String("procedure", procURI), zap.String("call_id", callID))

	return awaitCallReply(ctx, s, callID, newPrintingSubscriber(cmd.OutOrStdout(), logger))
}

// awaitCallReply reads messages until the reply to callID arrives. Events
// and replies to other calls are skipped.
func awaitCallReply(ctx context.Context, s *session.Session, callID string, printer *printingSubscriber) error {
	for {
		msg, err := s.ReadMessage(ctx)
		if err != nil {
			return fmt.Errorf("waiting for result of call %s: %w", callID, err)
		}

		switch msg.Type {
		case protocol.TypeCallResult:
			result, err := msg.CallResult()
			if err != nil {
				return err
			}
			if result.CallID == callID {
				return printer.OnCallResult(ctx, result)
			}

		case protocol.TypeCallError:
			callErr, err := msg.CallError()
			if err != nil {
				return err
			}
			if callErr.CallID == callID {
				return callErr
			}
		}
	}
}
