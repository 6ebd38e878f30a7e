package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:          "hazard",
	Short:        "Hazard report sync engine",
	Long:         "Keeps local views of workplace hazard reports in sync with the shared report store.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
			return
		}
		logger := logging.New(cmd.ErrOrStderr(), logLevel, logFormat)
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	},
}

// Execute runs the root command with ctx. It is called once by main.main().
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logger := logging.New(rootCmd.ErrOrStderr(), "info", "text")
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithAttrs(ctx, slog.String("app", "hazardsync"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: ./configs/config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error), overrides log.level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text|json), overrides log.format")
}
