package models

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	gorm.Model

	ProjectID   uint   `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null;default:'To Do'"` // one of the project template's columns
	Priority    string `gorm:"not null;default:'Medium'"`
	AssigneeID  *uint  `gorm:"index"`
	CreatorID   uint   `gorm:"not null"`
	DueDate     *time.Time

	// Relationships
	Project      Project          `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Assignee     *User            `gorm:"foreignKey:AssigneeID"`
	Creator      User             `gorm:"foreignKey:CreatorID"`
	Subtasks     []Subtask        `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Dependencies []TaskDependency `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	History      []TaskHistory    `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
