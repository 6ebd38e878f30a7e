package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazards"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create reports from a TOML seed file, all or none",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path, _ := cmd.Flags().GetString("file")
		inputs, err := hazards.LoadSeedFile(path)
		if err != nil {
			return errs.Wrap(err, "load seed file")
		}

		saved, err := svc.ImportReports(ctx, inputs)
		if err != nil {
			logging.Error(ctx, "import hazard reports failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "import hazard reports")
		}

		logging.Info(ctx, "hazard reports imported", slog.String("file", path), slog.Int("count", len(saved)))
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d reports from %s\n", len(saved), path); err != nil {
			return errs.Wrap(err, "write import output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("file", "", "Path to a TOML file of [[report]] tables")
	_ = importCmd.MarkFlagRequired("file")
}
