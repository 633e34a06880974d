// Package authz answers project authorization questions. Every check fails
// closed: a query error yields false, never an error to the caller.
package authz

import (
	"log"

	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/types"
	"gorm.io/gorm"
)

// IsAdmin reports whether the user holds the global "admin" role. Admins
// short-circuit every project-scoped check.
func IsAdmin(gdb *gorm.DB, userID uint) bool {
	var count int64

	err := gdb.Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, types.RoleAdmin).
		Count(&count).Error

	if err != nil {
		log.Printf("Admin role check failed for user %d: %v", userID, err)
		return false
	}

	return count > 0
}

// CanAccessProject reports whether the user may see the project: global
// admin, owner, or any membership row.
func CanAccessProject(gdb *gorm.DB, userID, projectID uint) bool {
	if IsAdmin(gdb, userID) {
		return true
	}

	if isOwner(gdb, userID, projectID) {
		return true
	}

	var count int64

	err := gdb.Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&count).Error

	if err != nil {
		log.Printf("Membership check failed for user %d project %d: %v", userID, projectID, err)
		return false
	}

	return count > 0
}

// HasProjectRole reports whether the user holds exactly the given
// project-scoped role. Global admins and the project owner always pass.
func HasProjectRole(gdb *gorm.DB, userID, projectID uint, role string) bool {
	if IsAdmin(gdb, userID) {
		return true
	}

	if isOwner(gdb, userID, projectID) {
		return true
	}

	var count int64

	err := gdb.Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ? AND role = ?", userID, projectID, role).
		Count(&count).Error

	if err != nil {
		log.Printf("Role check failed for user %d project %d role %s: %v", userID, projectID, role, err)
		return false
	}

	return count > 0
}

// Ownership counts for trashed projects too, so owners can restore or purge
// their own trash.
func isOwner(gdb *gorm.DB, userID, projectID uint) bool {
	var count int64

	err := gdb.Unscoped().Model(&models.Project{}).
		Where("id = ? AND owner_id = ?", projectID, userID).
		Count(&count).Error

	if err != nil {
		log.Printf("Ownership check failed for user %d project %d: %v", userID, projectID, err)
		return false
	}

	return count > 0
}
