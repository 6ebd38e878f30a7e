package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/delivery/httpapi"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazards"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live views over HTTP and websocket while syncing",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}

		views := make(map[string]*hazards.View, 2)
		for _, spec := range []hazard.ViewSpec{hazard.ActiveView(), hazard.ResolvedView()} {
			view, sub, err := svc.RegisterView(ctx, spec)
			if err != nil {
				return errs.Wrapf(err, "register %s view", spec.Name)
			}
			defer svc.Deregister(sub)
			views[spec.Name] = view
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewRouter(httpapi.Options{Service: svc, Views: views}),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		watchErr := make(chan error, 1)
		go func() {
			watchErr <- svc.Watch(runCtx, watchOptions(app.Config.Sync, nil))
		}()

		serveErr := make(chan error, 1)
		go func() {
			logging.Info(ctx, "http api listening", slog.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				return
			}
			serveErr <- nil
		}()

		var runErr error
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			runErr = errs.Wrap(err, "serve http")
		case err := <-watchErr:
			runErr = errs.Wrap(err, "watch remote changes")
		}
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn(ctx, "http shutdown failed", slog.Any("err", errs.Loggable(err)))
		}
		logging.Info(ctx, "http api stopped")
		return runErr
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default: http.addr)")
}
