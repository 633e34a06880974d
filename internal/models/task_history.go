package models

import (
	"time"

	"gorm.io/gorm"
)

// One row per changed field per mutation, appended by the task handlers.
type TaskHistory struct {
	gorm.Model

	TaskID    uint   `gorm:"not null;index"`
	UserID    uint   `gorm:"not null"`
	Field     string `gorm:"not null"`
	OldValue  string
	NewValue  string
	ChangedAt time.Time `gorm:"not null"`

	// Relationships
	Task Task `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"-"`
}
