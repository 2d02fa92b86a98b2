package models

import "time"

// TargetRecordModel is a record created in the gorm staging target. Values
// holds the JSON object the migrator sent for the target model.
type TargetRecordModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Model     string `gorm:"type:varchar(100);not null;index"`
	Values    string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// TableName returns the table name for GORM
func (TargetRecordModel) TableName() string {
	return "target_records"
}
