package model

// ChangeNotice is one row of the append-only change feed. Seq is the feed
// position encoded into change tokens.
type ChangeNotice struct {
	Seq       uint64 `gorm:"column:seq;primaryKey;autoIncrement"`
	ReportID  string `gorm:"column:report_id;type:text;not null;index"`
	Reason    string `gorm:"column:reason;type:text;not null"`
	CreatedAt string `gorm:"column:created_at;type:text;not null"`
}

func (ChangeNotice) TableName() string {
	return "hazard_change_notices"
}
