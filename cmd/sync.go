package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazards"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull remote changes, once or until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		once, _ := cmd.Flags().GetBool("once")
		if once {
			format, err := formatFlag(cmd)
			if err != nil {
				return err
			}
			result, err := svc.SyncOnce(ctx)
			if err != nil {
				logging.Error(ctx, "sync failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "sync once")
			}
			return renderChanges(cmd.OutOrStdout(), format, result.Events)
		}

		// Log every delivered batch so the watch is observable without a UI.
		sub := svc.Fanout().Register(hazards.ListenerFunc(func(events []hazard.ChangeEvent) {
			for _, event := range events {
				logging.Info(ctx, "hazard report changed",
					slog.String("kind", event.Kind().String()),
					slog.String("id", event.ID().String()),
				)
			}
		}))
		defer svc.Deregister(sub)

		logging.Info(ctx, "watching for remote changes",
			slog.Duration("poll_interval", app.Config.Sync.PollInterval),
			slog.String("notify_driver", app.Config.Notify.Driver),
		)
		if err := svc.Watch(ctx, watchOptions(app.Config.Sync, nil)); err != nil {
			return errs.Wrap(err, "watch remote changes")
		}
		logging.Info(ctx, "watch stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("once", false, "Fetch one round of changes, print them and exit")
	syncCmd.Flags().String("format", string(formatText), "Output format for --once (text|yaml|json)")
}
