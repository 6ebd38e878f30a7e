package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/config"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazards"
)

func withApp(run func(cmd *cobra.Command, app *bootstrap.App, svc *hazards.Service) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		var app *bootstrap.App
		var svc *hazards.Service
		fxApp := fx.New(
			bootstrap.Module,
			fx.NopLogger,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&app, &svc),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		cmd.SetContext(configuredLogger(cmd, app.Config.Log))
		if err := run(cmd, app, svc); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

// configuredLogger applies log.level and log.format from the config file
// unless the command line already chose them.
func configuredLogger(cmd *cobra.Command, cfg config.LogConfig) context.Context {
	ctx := cmd.Context()
	if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-format") {
		return ctx
	}
	return logging.WithLogger(ctx, logging.New(cmd.ErrOrStderr(), cfg.Level, cfg.Format))
}

func watchOptions(cfg config.SyncConfig, onSync func(hazards.SyncResult)) hazards.WatchOptions {
	return hazards.WatchOptions{
		PollInterval:   cfg.PollInterval,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		MaxRetries:     cfg.MaxRetries,
		OnSync:         onSync,
	}
}
