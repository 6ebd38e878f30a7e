package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatYAML outputFormat = "yaml"
	formatJSON outputFormat = "json"
)

func parseFormat(raw string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", formatText:
		return formatText, nil
	case formatYAML, "yml":
		return formatYAML, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text|yaml|json)", raw)
	}
}

type locationOutput struct {
	Latitude       float64 `json:"latitude" yaml:"latitude"`
	Longitude      float64 `json:"longitude" yaml:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty" yaml:"accuracy_meters,omitempty"`
}

type photoOutput struct {
	Key         string `json:"key" yaml:"key"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
}

type reportOutput struct {
	ID          string          `json:"id" yaml:"id"`
	Description string          `json:"description" yaml:"description"`
	Status      string          `json:"status" yaml:"status"`
	Emergency   bool            `json:"emergency" yaml:"emergency"`
	Location    *locationOutput `json:"location,omitempty" yaml:"location,omitempty"`
	Photo       *photoOutput    `json:"photo,omitempty" yaml:"photo,omitempty"`
	CreatedAt   string          `json:"created_at" yaml:"created_at"`
	ModifiedAt  string          `json:"modified_at" yaml:"modified_at"`
}

type resolutionOutput struct {
	StaffMember string `json:"staff_member" yaml:"staff_member"`
	Description string `json:"description" yaml:"description"`
}

type reportDetailOutput struct {
	reportOutput `yaml:",inline"`
	Resolutions  []resolutionOutput `json:"resolutions" yaml:"resolutions"`
}

type viewOutput struct {
	View    string         `json:"view" yaml:"view"`
	Count   int            `json:"count" yaml:"count"`
	Reports []reportOutput `json:"reports" yaml:"reports"`
}

type changeOutput struct {
	Kind string `json:"kind" yaml:"kind"`
	ID   string `json:"id" yaml:"id"`
}

func toReportOutput(rec hazard.Record) reportOutput {
	out := reportOutput{
		ID:          rec.ID.String(),
		Description: rec.Description,
		Status:      statusLabel(rec),
		Emergency:   rec.IsEmergency,
		CreatedAt:   formatStamp(rec.CreatedAt),
		ModifiedAt:  formatStamp(rec.ModifiedAt),
	}
	if rec.Location != nil {
		out.Location = &locationOutput{
			Latitude:       rec.Location.Latitude,
			Longitude:      rec.Location.Longitude,
			AccuracyMeters: rec.Location.AccuracyMeters,
		}
	}
	if rec.Photo != nil {
		out.Photo = &photoOutput{Key: rec.Photo.Key, ContentType: rec.Photo.ContentType}
	}
	return out
}

func renderView(w io.Writer, format outputFormat, view string, records []hazard.Record) error {
	if format != formatText {
		reports := make([]reportOutput, 0, len(records))
		for _, rec := range records {
			reports = append(reports, toReportOutput(rec))
		}
		return encodeStructured(w, format, viewOutput{View: view, Count: len(records), Reports: reports})
	}

	if len(records) == 0 {
		_, err := fmt.Fprintf(w, "no reports in %s view\n", view)
		return errs.Wrap(err, "write view output")
	}

	// The time column follows the view's sort key.
	stampLabel := "CREATED"
	stamp := func(rec hazard.Record) time.Time { return rec.CreatedAt }
	if view == hazard.ViewResolved {
		stampLabel = "MODIFIED"
		stamp = func(rec hazard.Record) time.Time { return rec.ModifiedAt }
	}

	if _, err := fmt.Fprintf(w, "%-36s  %-20s  %-9s  %s\n", "ID", stampLabel, "FLAG", "DESCRIPTION"); err != nil {
		return errs.Wrap(err, "write view header")
	}
	for _, rec := range records {
		flag := "-"
		if rec.IsEmergency {
			flag = "emergency"
		}
		if _, err := fmt.Fprintf(w, "%-36s  %-20s  %-9s  %s\n",
			rec.ID, formatStamp(stamp(rec)), flag, oneLine(rec.Description)); err != nil {
			return errs.Wrap(err, "write view row")
		}
	}
	return nil
}

func renderReport(w io.Writer, format outputFormat, rec hazard.Record) error {
	if format != formatText {
		return encodeStructured(w, format, toReportOutput(rec))
	}

	emergency := "no"
	if rec.IsEmergency {
		emergency = "yes"
	}
	location := "-"
	if loc := rec.Location; loc != nil {
		location = fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
		if loc.AccuracyMeters > 0 {
			location += fmt.Sprintf(" accuracy %.0fm", loc.AccuracyMeters)
		}
	}
	photo := "-"
	if rec.Photo != nil {
		photo = rec.Photo.Key
		if rec.Photo.ContentType != "" {
			photo += " (" + rec.Photo.ContentType + ")"
		}
	}

	rows := [][2]string{
		{"id:", rec.ID.String()},
		{"description:", oneLine(rec.Description)},
		{"status:", statusLabel(rec)},
		{"emergency:", emergency},
		{"location:", location},
		{"photo:", photo},
		{"created:", formatStamp(rec.CreatedAt)},
		{"modified:", formatStamp(rec.ModifiedAt)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-12s %s\n", row[0], row[1]); err != nil {
			return errs.Wrap(err, "write report output")
		}
	}
	return nil
}

// renderReportDetail is renderReport followed by the report's resolution
// history.
func renderReportDetail(w io.Writer, format outputFormat, rec hazard.Record, resolutions []hazard.Resolution) error {
	if format != formatText {
		detail := reportDetailOutput{
			reportOutput: toReportOutput(rec),
			Resolutions:  make([]resolutionOutput, 0, len(resolutions)),
		}
		for _, resolution := range resolutions {
			detail.Resolutions = append(detail.Resolutions, resolutionOutput{
				StaffMember: resolution.StaffMemberName,
				Description: resolution.Description,
			})
		}
		return encodeStructured(w, format, detail)
	}

	if err := renderReport(w, format, rec); err != nil {
		return err
	}
	if len(resolutions) == 0 {
		_, err := fmt.Fprintf(w, "%-12s %s\n", "resolutions:", "-")
		return errs.Wrap(err, "write resolution output")
	}
	if _, err := fmt.Fprintln(w, "resolutions:"); err != nil {
		return errs.Wrap(err, "write resolution output")
	}
	for _, resolution := range resolutions {
		if _, err := fmt.Fprintf(w, "  - %s: %s\n", resolution.StaffMemberName, oneLine(resolution.Description)); err != nil {
			return errs.Wrap(err, "write resolution output")
		}
	}
	return nil
}

func renderChanges(w io.Writer, format outputFormat, events []hazard.ChangeEvent) error {
	if format != formatText {
		changes := make([]changeOutput, 0, len(events))
		for _, event := range events {
			changes = append(changes, changeOutput{Kind: event.Kind().String(), ID: event.ID().String()})
		}
		return encodeStructured(w, format, changes)
	}

	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no changes")
		return errs.Wrap(err, "write sync output")
	}
	for _, event := range events {
		if _, err := fmt.Fprintf(w, "%-8s %s\n", event.Kind(), event.ID()); err != nil {
			return errs.Wrap(err, "write sync output")
		}
	}
	return nil
}

func encodeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errs.Wrap(enc.Encode(v), "encode json output")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errs.Wrap(err, "encode yaml output")
		}
		return errs.Wrap(enc.Close(), "flush yaml output")
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func statusLabel(rec hazard.Record) string {
	if rec.IsResolved {
		return "resolved"
	}
	return "active"
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
