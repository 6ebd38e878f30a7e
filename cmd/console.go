package cmd

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazardconsole"
	"hazardsync/internal/usecase/hazards"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Live terminal view of active and resolved reports",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		staff, _ := cmd.Flags().GetString("staff")
		notes, _ := cmd.Flags().GetString("notes")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = app.Config.Sync.PollInterval
		}

		active, activeSub, err := svc.RegisterView(ctx, hazard.ActiveView())
		if err != nil {
			return errs.Wrap(err, "register active view")
		}
		defer svc.Deregister(activeSub)
		resolved, resolvedSub, err := svc.RegisterView(ctx, hazard.ResolvedView())
		if err != nil {
			return errs.Wrap(err, "register resolved view")
		}
		defer svc.Deregister(resolvedSub)

		// Signals from other writers trigger a sync; the console's own
		// ticker covers polling.
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go func() {
			opts := watchOptions(app.Config.Sync, nil)
			opts.PollInterval = 0
			if err := svc.Watch(watchCtx, opts); err != nil {
				logging.Warn(ctx, "background watch stopped", slog.Any("err", errs.Loggable(err)))
			}
		}()

		model, stop := hazardconsole.NewModel(ctx, svc, active, resolved, hazardconsole.Options{
			StaffMember:     staff,
			SyncInterval:    refreshInterval,
			ResolutionNotes: notes,
		})
		defer stop()

		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run hazard console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("staff", "", "Safety staff member name used when resolving (required to resolve)")
	consoleCmd.Flags().String("notes", "", "Resolution description used when resolving")
	consoleCmd.Flags().Duration("refresh-interval", 10*time.Second, "Sync interval; 0 uses sync.poll_interval")
}
