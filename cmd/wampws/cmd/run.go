package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsarna/wampws/pkg/wampws/config"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [config-files-or-directories...]",
	Short: "Run a client from configuration files",
	Long: `Run a WAMP client described by HCL configuration files.

The client connects to the configured endpoint, registers its prefixes,
subscribes to its topics and starts its publishing schedules. Events are
printed until the process is interrupted. Directories are searched for
*.hcl and *.wamp files.

Examples:
  wampws run client.hcl
  wampws run ./configs/
  wampws run base.hcl overrides.hcl --jq '.value'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var runOpts pipelineOptions

func init() {
	rootCmd.AddCommand(runCmd)
	addPipelineFlags(runCmd, &runOpts)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting wampws client", zap.Strings("config-paths", args))

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Error(diags))
		return diags
	}

	subscriber, err := newEventPipeline(cmd.OutOrStdout(), logger, runOpts)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := withObservability(cfg.SessionBuilder()).Build()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	sessionID, err := s.Connect(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Endpoint, err)
	}
	defer s.Disconnect()

	logger.Info("Connected to WAMP server",
		zap.Stringer("endpoint", cfg.Endpoint),
		zap.String("session", sessionID),
	)

	for _, p := range cfg.Prefixes {
		if err := s.Prefix(ctx, p.Name, p.URI); err != nil {
			return fmt.Errorf("failed to register prefix %s: %w", p.Name, err)
		}
	}

	for _, topic := range cfg.Subscriptions {
		if err := s.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		logger.Info("Subscribed to topic", zap.String("topic", topic))
	}

	scheduler, diags := cfg.BuildScheduler(ctx, s)
	if diags.HasErrors() {
		return diags
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	return listen(ctx, logger, s, subscriber)
}
