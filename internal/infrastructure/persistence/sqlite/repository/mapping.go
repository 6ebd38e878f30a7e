package repository

import (
	"time"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
	"hazardsync/internal/infrastructure/persistence/sqlite/model"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errs.Mark(errs.Wrapf(err, "parse timestamp %q", raw), errs.ErrEncoding)
	}
	return parsed.UTC(), nil
}

func toReportRow(rec hazard.Record) model.HazardReport {
	row := model.HazardReport{
		ReportID:    rec.ID.String(),
		Description: rec.Description,
		IsEmergency: rec.IsEmergency,
		IsResolved:  rec.IsResolved,
	}
	if rec.Location != nil {
		lat, lon, acc := rec.Location.Latitude, rec.Location.Longitude, rec.Location.AccuracyMeters
		row.Latitude = &lat
		row.Longitude = &lon
		row.AccuracyMeters = &acc
	}
	if rec.Photo != nil {
		key, contentType := rec.Photo.Key, rec.Photo.ContentType
		row.PhotoKey = &key
		row.PhotoContentType = &contentType
	}
	return row
}

func mapReport(row model.HazardReport) (hazard.Record, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return hazard.Record{}, err
	}
	modifiedAt, err := parseTime(row.ModifiedAt)
	if err != nil {
		return hazard.Record{}, err
	}
	handle, err := encodeHandle(row.ReportID, row.Version)
	if err != nil {
		return hazard.Record{}, err
	}

	rec := hazard.Record{
		ID:          hazard.Identity(row.ReportID),
		Description: row.Description,
		IsEmergency: row.IsEmergency,
		IsResolved:  row.IsResolved,
		CreatedAt:   createdAt,
		ModifiedAt:  modifiedAt,
		Handle:      handle,
	}
	if row.Latitude != nil && row.Longitude != nil {
		loc := hazard.GeoPoint{Latitude: *row.Latitude, Longitude: *row.Longitude}
		if row.AccuracyMeters != nil {
			loc.AccuracyMeters = *row.AccuracyMeters
		}
		rec.Location = &loc
	}
	if row.PhotoKey != nil {
		photo := hazard.AssetRef{Key: *row.PhotoKey}
		if row.PhotoContentType != nil {
			photo.ContentType = *row.PhotoContentType
		}
		rec.Photo = &photo
	}
	return rec, nil
}
