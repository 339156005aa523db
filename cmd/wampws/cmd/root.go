package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/wampws/pkg/wampws/otel"
	"github.com/tsarna/wampws/pkg/wampws/session"
	"go.uber.org/zap"
)

var version = "dev"

var (
	verbose         bool
	debug           bool
	logLevel        string
	target          string
	dialTimeout     time.Duration
	ioTimeout       time.Duration
	strictHandshake bool
	headers         []string
	enableOtel      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wampws",
	Short: "WAMP v1 WebSocket client",
	Long: `wampws talks WAMP v1 to a server over a plain WebSocket connection.

It can issue RPC calls, publish events, register CURIE prefixes and
print the events published to subscribed topics. The run command drives
all of these from HCL configuration files.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&target, "target", session.DefaultTarget, "request target for the WebSocket upgrade")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "connection dial timeout")
	rootCmd.PersistentFlags().DurationVar(&ioTimeout, "io-timeout", 0, "handshake and write timeout (0 for none)")
	rootCmd.PersistentFlags().BoolVar(&strictHandshake, "strict-handshake", false, "validate the server's Sec-WebSocket-Accept")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", nil, "extra upgrade request header, as 'Name: value'")
	rootCmd.PersistentFlags().BoolVar(&enableOtel, "otel", false, "record session metrics and traces through OpenTelemetry")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}

// newSessionBuilder applies the global connection flags.
func newSessionBuilder(logger *zap.Logger) *session.SessionBuilder {
	b := session.NewSession().
		WithLogger(logger).
		WithTarget(target).
		WithDialTimeout(dialTimeout).
		WithIOTimeout(ioTimeout).
		WithStrictHandshake(strictHandshake)

	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			logger.Warn("Ignoring malformed header", zap.String("header", h))
			continue
		}
		b.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return withObservability(b)
}

func withObservability(b *session.SessionBuilder) *session.SessionBuilder {
	if !enableOtel {
		return b
	}
	provider := otel.NewProvider("wampws", version)
	return b.WithMetricsProvider(provider).WithTracingProvider(provider)
}
