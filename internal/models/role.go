package models

import "gorm.io/gorm"

// Global roles, seeded at migration time. Project-scoped roles live on
// ProjectMembership.Role instead.
type Role struct {
	gorm.Model

	Name        string `gorm:"uniqueIndex;not null"` // "admin", "project_manager", "team_member"
	Description string

	Users []User `gorm:"many2many:user_roles"`
}
