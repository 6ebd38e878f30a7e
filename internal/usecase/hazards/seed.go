package hazards

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"hazardsync/internal/domain/hazard"
)

type seedFile struct {
	Reports []seedReport `toml:"report"`
}

type seedReport struct {
	Description      string   `toml:"description"`
	Emergency        bool     `toml:"emergency"`
	Latitude         *float64 `toml:"latitude"`
	Longitude        *float64 `toml:"longitude"`
	AccuracyMeters   float64  `toml:"accuracy_meters"`
	PhotoKey         string   `toml:"photo_key"`
	PhotoContentType string   `toml:"photo_content_type"`
}

// LoadSeedFile reads reports from a TOML file of [[report]] tables.
func LoadSeedFile(path string) ([]ReportInput, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("seed file is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, err
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) ([]ReportInput, error) {
	var file seedFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}

	inputs := make([]ReportInput, 0, len(file.Reports))
	for i, report := range file.Reports {
		input := ReportInput{
			Description: report.Description,
			IsEmergency: report.Emergency,
		}
		switch {
		case report.Latitude != nil && report.Longitude != nil:
			input.Location = &hazard.GeoPoint{
				Latitude:       *report.Latitude,
				Longitude:      *report.Longitude,
				AccuracyMeters: report.AccuracyMeters,
			}
		case report.Latitude != nil || report.Longitude != nil:
			return nil, fmt.Errorf("report %d: latitude and longitude must be set together", i+1)
		}
		if key := strings.TrimSpace(report.PhotoKey); key != "" {
			input.Photo = &hazard.AssetRef{Key: key, ContentType: strings.TrimSpace(report.PhotoContentType)}
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}
