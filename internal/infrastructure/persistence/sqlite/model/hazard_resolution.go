package model

type HazardResolution struct {
	ResolutionID    uint64 `gorm:"column:resolution_id;primaryKey;autoIncrement"`
	ReportID        string `gorm:"column:report_id;type:text;not null;index"`
	Description     string `gorm:"column:description;type:text;not null"`
	StaffMemberName string `gorm:"column:staff_member_name;type:text;not null"`
	CreatedAt       string `gorm:"column:created_at;type:text;not null"`
}

func (HazardResolution) TableName() string {
	return "hazard_resolutions"
}
