package models

import "gorm.io/gorm"

// Directed edge: TaskID depends on DependsOnID. Self-references are rejected
// at the handler layer; the pair is unique.
type TaskDependency struct {
	gorm.Model

	TaskID      uint `gorm:"not null;uniqueIndex:idx_task_depends"`
	DependsOnID uint `gorm:"not null;uniqueIndex:idx_task_depends"`

	// Relationships
	Task      Task `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	DependsOn Task `gorm:"foreignKey:DependsOnID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
