package models

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	gorm.Model

	Name        string `gorm:"not null"`
	Description string
	Deadline    *time.Time
	OwnerID     uint `gorm:"not null;index"`
	TemplateID  *uint

	// Optional notification channels for due-date reminders
	DiscordWebhook string
	SlackWebhook   string

	// Relationships
	Owner              User                `gorm:"foreignKey:OwnerID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Template           *BoardTemplate      `gorm:"foreignKey:TemplateID"`
	ProjectMemberships []ProjectMembership `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Tasks              []Task              `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
