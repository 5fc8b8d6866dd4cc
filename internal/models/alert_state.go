package models

import (
	"time"
)

// AlertState is the per (item, direction) severity watermark for one UTC
// calendar day. Severity only escalates within a day; a row whose Day is in
// the past counts as no severity reached.
type AlertState struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ItemID    string    `gorm:"type:text;not null;uniqueIndex:idx_alert_state_key,priority:1"`
	Direction string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_alert_state_key,priority:2"`
	Level     int       `gorm:"not null"`
	Day       string    `gorm:"type:varchar(10);not null;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AlertState) TableName() string {
	return "alert_states"
}
