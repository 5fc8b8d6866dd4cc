package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertEvent is one fired threshold crossing, kept for audit and replay.
// Payload carries the old/new price pair and the measured change.
type AlertEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	ItemID    string         `gorm:"type:text;not null;index"`
	Direction string         `gorm:"type:varchar(10);not null"`
	Level     string         `gorm:"type:varchar(10);not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AlertEvent) TableName() string {
	return "alert_events"
}
