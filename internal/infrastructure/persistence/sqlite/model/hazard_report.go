package model

type HazardReport struct {
	ReportID         string   `gorm:"column:report_id;type:text;primaryKey"`
	Description      string   `gorm:"column:description;type:text;not null"`
	Latitude         *float64 `gorm:"column:latitude"`
	Longitude        *float64 `gorm:"column:longitude"`
	AccuracyMeters   *float64 `gorm:"column:accuracy_meters"`
	PhotoKey         *string  `gorm:"column:photo_key;type:text"`
	PhotoContentType *string  `gorm:"column:photo_content_type;type:text"`
	IsEmergency      bool     `gorm:"column:is_emergency;not null;default:0"`
	IsResolved       bool     `gorm:"column:is_resolved;not null;default:0;index"`
	Version          uint64   `gorm:"column:version;not null"`
	CreatedAt        string   `gorm:"column:created_at;type:text;not null"`
	ModifiedAt       string   `gorm:"column:modified_at;type:text;not null"`
}

func (HazardReport) TableName() string {
	return "hazard_reports"
}
