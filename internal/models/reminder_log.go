package models

import (
	"time"

	"gorm.io/gorm"
)

// Records a sent due-date reminder so the scheduler does not notify the same
// task more than once per day per kind.
type ReminderLog struct {
	gorm.Model

	TaskID uint      `gorm:"not null;index"`
	Kind   string    `gorm:"not null"` // "due_soon", "overdue"
	SentAt time.Time `gorm:"not null"`
}
