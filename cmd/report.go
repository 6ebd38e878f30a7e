package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"hazardsync/internal/bootstrap"
	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/usecase/hazards"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create, change and list hazard reports",
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new hazard report",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		emergency, _ := cmd.Flags().GetBool("emergency")
		location, err := locationFlags(cmd)
		if err != nil {
			return err
		}

		rec, err := svc.CreateReport(ctx, hazards.ReportInput{
			Description: description,
			Location:    location,
			Photo:       photoFlags(cmd),
			IsEmergency: emergency,
		})
		if err != nil {
			logging.Error(ctx, "create hazard report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "create hazard report")
		}

		return renderReport(cmd.OutOrStdout(), format, rec)
	}),
}

var reportUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change fields of an existing report",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		id, err := idFlag(cmd)
		if err != nil {
			return err
		}

		var patch hazards.ReportPatch
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			patch.Description = &description
		}
		if cmd.Flags().Changed("emergency") {
			emergency, _ := cmd.Flags().GetBool("emergency")
			patch.IsEmergency = &emergency
		}
		if patch.Location, err = locationFlags(cmd); err != nil {
			return err
		}
		patch.Photo = photoFlags(cmd)

		rec, err := svc.UpdateReport(ctx, id, patch)
		if err != nil {
			logging.Error(ctx, "update hazard report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "update hazard report")
		}

		return renderReport(cmd.OutOrStdout(), format, rec)
	}),
}

var reportResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Mark a report resolved and record who resolved it",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		id, err := idFlag(cmd)
		if err != nil {
			return err
		}
		staff, _ := cmd.Flags().GetString("staff")
		notes, _ := cmd.Flags().GetString("notes")

		rec, err := svc.ResolveReport(ctx, id, hazards.ResolveInput{
			StaffMemberName: staff,
			Description:     notes,
		})
		if err != nil {
			logging.Error(ctx, "resolve hazard report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "resolve hazard report")
		}

		return renderReport(cmd.OutOrStdout(), format, rec)
	}),
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a report and its resolutions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := idFlag(cmd)
		if err != nil {
			return err
		}
		if err := svc.DeleteReport(ctx, id); err != nil {
			logging.Error(ctx, "delete hazard report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "delete hazard report")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted report: %s\n", id); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one report with its resolution history",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		id, err := idFlag(cmd)
		if err != nil {
			return err
		}

		rec, err := svc.GetReport(ctx, id)
		if err != nil {
			logging.Error(ctx, "get hazard report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get hazard report")
		}
		resolutions, err := svc.ListResolutions(ctx, id)
		if err != nil {
			logging.Error(ctx, "list hazard resolutions failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list hazard resolutions")
		}
		return renderReportDetail(cmd.OutOrStdout(), format, rec, resolutions)
	}),
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active or resolved view",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *hazards.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		viewName, _ := cmd.Flags().GetString("view")
		spec, err := hazard.ViewByName(viewName)
		if err != nil {
			return err
		}

		records, err := svc.ListReports(ctx, spec)
		if err != nil {
			logging.Error(ctx, "list hazard reports failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list hazard reports")
		}
		return renderView(cmd.OutOrStdout(), format, spec.Name, records)
	}),
}

func formatFlag(cmd *cobra.Command) (outputFormat, error) {
	raw, _ := cmd.Flags().GetString("format")
	return parseFormat(raw)
}

func idFlag(cmd *cobra.Command) (hazard.Identity, error) {
	raw, _ := cmd.Flags().GetString("id")
	return hazard.ParseIdentity(raw)
}

// locationFlags returns nil unless a coordinate flag was given; latitude
// and longitude must come together.
func locationFlags(cmd *cobra.Command) (*hazard.GeoPoint, error) {
	latSet := cmd.Flags().Changed("lat")
	lonSet := cmd.Flags().Changed("lon")
	if !latSet && !lonSet {
		return nil, nil
	}
	if latSet != lonSet {
		return nil, errors.New("--lat and --lon must be given together")
	}
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	accuracy, _ := cmd.Flags().GetFloat64("accuracy")
	return &hazard.GeoPoint{Latitude: lat, Longitude: lon, AccuracyMeters: accuracy}, nil
}

func photoFlags(cmd *cobra.Command) *hazard.AssetRef {
	if !cmd.Flags().Changed("photo-key") {
		return nil
	}
	key, _ := cmd.Flags().GetString("photo-key")
	contentType, _ := cmd.Flags().GetString("photo-type")
	return &hazard.AssetRef{Key: key, ContentType: contentType}
}

func addContentFlags(cmd *cobra.Command) {
	cmd.Flags().String("description", "", "What the hazard is and where")
	cmd.Flags().Bool("emergency", false, "Flag the report as an emergency")
	cmd.Flags().Float64("lat", 0, "Latitude in degrees")
	cmd.Flags().Float64("lon", 0, "Longitude in degrees")
	cmd.Flags().Float64("accuracy", 0, "Location accuracy in meters")
	cmd.Flags().String("photo-key", "", "Key of an uploaded photo")
	cmd.Flags().String("photo-type", "", "Content type of the photo")
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportCreateCmd, reportUpdateCmd, reportResolveCmd, reportDeleteCmd, reportShowCmd, reportListCmd)

	for _, c := range []*cobra.Command{reportCreateCmd, reportUpdateCmd, reportResolveCmd, reportShowCmd, reportListCmd} {
		c.Flags().String("format", string(formatText), "Output format (text|yaml|json)")
	}
	for _, c := range []*cobra.Command{reportUpdateCmd, reportResolveCmd, reportDeleteCmd, reportShowCmd} {
		c.Flags().String("id", "", "Report id")
		_ = c.MarkFlagRequired("id")
	}

	addContentFlags(reportCreateCmd)
	_ = reportCreateCmd.MarkFlagRequired("description")
	addContentFlags(reportUpdateCmd)

	reportResolveCmd.Flags().String("staff", "", "Name of the safety staff member resolving the report")
	reportResolveCmd.Flags().String("notes", "", "What was done to resolve it")
	_ = reportResolveCmd.MarkFlagRequired("staff")
	_ = reportResolveCmd.MarkFlagRequired("notes")

	reportListCmd.Flags().String("view", hazard.ViewActive, "View to list (active|resolved)")
}
