package models

import "gorm.io/gorm"

type Subtask struct {
	gorm.Model

	TaskID      uint   `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null;default:'To Do'"`
	Completed   bool   `gorm:"not null;default:false"`

	// Relationships
	Task Task `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
