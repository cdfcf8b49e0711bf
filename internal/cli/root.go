package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-job-chief/internal/core"
	"github.com/openjobspec/ojs-job-chief/internal/logging"
)

var (
	flagLogLevel  string
	flagLogFormat string
	flagServer    string
	flagNatsURL   string

	logger *slog.Logger
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewRootCmd creates the root command of the job-chief binary.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "job-chief",
		Short:   "Runs Kubernetes jobs for queues that have work",
		Long:    "job-chief watches NATS JetStream queues and launches one Kubernetes Job per queue whenever it has pending items.",
		Version: core.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			slog.SetDefault(logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagServer, "server", envOr("JOB_CHIEF_SERVER", "http://localhost:8080"), "job-chief HTTP address (or JOB_CHIEF_SERVER env)")
	root.PersistentFlags().StringVar(&flagNatsURL, "nats-url", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL (or NATS_URL env)")

	root.AddCommand(
		newServeCmd(),
		newTriggerCmd(),
		newEnqueueCmd(),
		newValidateCmd(),
		newWatchCmd(),
	)

	return root
}
