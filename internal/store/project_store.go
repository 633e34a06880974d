// Package store implements the soft-delete / restore / permanent-delete
// lifecycle for projects and tasks. Every multi-statement write runs inside a
// single transaction: commit on a nil return, rollback on any error.
package store

import (
	"errors"
	"log"
	"time"

	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/storage"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyTrashed = errors.New("already in trash")
	ErrActiveProject  = errors.New("cannot permanently delete an active project")
	ErrActiveTask     = errors.New("cannot permanently delete an active task")
)

// CascadeResult reports how many rows a permanent delete removed per table.
type CascadeResult struct {
	History      int64 `json:"history"`
	Dependencies int64 `json:"dependencies"`
	Subtasks     int64 `json:"subtasks"`
	Attachments  int64 `json:"attachments"`
	Tasks        int64 `json:"tasks"`
}

func (r CascadeResult) Total() int64 {
	return r.History + r.Dependencies + r.Subtasks + r.Attachments + r.Tasks
}

// fetchAnyProject loads the project regardless of its soft-delete state.
func fetchAnyProject(gdb *gorm.DB, id uint) (*models.Project, error) {
	var project models.Project

	if err := gdb.Unscoped().First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &project, nil
}

// SoftDeleteProject stamps deleted_at on the project and all of its live
// tasks. Allowed only from the active state.
func SoftDeleteProject(gdb *gorm.DB, id uint) error {
	project, err := fetchAnyProject(gdb, id)

	if err != nil {
		return err
	}

	if project.DeletedAt.Valid {
		return ErrAlreadyTrashed
	}

	now := time.Now()

	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).
			Where("project_id = ?", id).
			Update("deleted_at", now).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Project{}).
			Where("id = ?", id).
			Update("deleted_at", now)

		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// RestoreProject clears deleted_at on the project and all of its tasks.
// Allowed only from the soft-deleted state.
func RestoreProject(gdb *gorm.DB, id uint) error {
	project, err := fetchAnyProject(gdb, id)

	if err != nil {
		return err
	}

	if !project.DeletedAt.Valid {
		return ErrActiveProject
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Model(&models.Task{}).
			Where("project_id = ? AND deleted_at IS NOT NULL", id).
			Update("deleted_at", nil).Error; err != nil {
			return err
		}

		res := tx.Unscoped().Model(&models.Project{}).
			Where("id = ?", id).
			Update("deleted_at", nil)

		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// PermanentDeleteProject physically removes a soft-deleted project and
// everything under it, in dependency order: history rows, dependency edges
// touching either endpoint, subtasks, attachment metadata, task rows, then
// the project row. The ordering is load-bearing: child rows must go before
// the task rows they reference. Commit happens only if the project-row
// delete itself affected a row.
func PermanentDeleteProject(gdb *gorm.DB, id uint) (CascadeResult, error) {
	project, err := fetchAnyProject(gdb, id)

	if err != nil {
		return CascadeResult{}, err
	}

	if !project.DeletedAt.Valid {
		return CascadeResult{}, ErrActiveProject
	}

	var result CascadeResult
	var blobPaths []string

	err = gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		result, blobPaths, err = cascadeProjectDelete(tx, id)
		return err
	})

	if err != nil {
		return CascadeResult{}, err
	}

	removeBlobs(blobPaths)

	log.Printf("Permanently deleted project %d: %d history, %d dependencies, %d subtasks, %d attachments, %d tasks",
		id, result.History, result.Dependencies, result.Subtasks, result.Attachments, result.Tasks)

	return result, nil
}

// removeBlobs deletes attachment files once their rows are gone. Runs only
// after commit so a rolled-back purge never loses data.
func removeBlobs(paths []string) {
	for _, path := range paths {
		if err := storage.Remove(path); err != nil {
			log.Printf("Failed to remove attachment file %s: %v", path, err)
		}
	}
}

// projectTaskIDs builds a fresh id subquery; gorm query chains must not be
// reused across statements.
func projectTaskIDs(tx *gorm.DB, id uint) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).
		Unscoped().Model(&models.Task{}).Select("id").Where("project_id = ?", id)
}

func cascadeProjectDelete(tx *gorm.DB, id uint) (CascadeResult, []string, error) {
	var result CascadeResult

	res := tx.Unscoped().Where("task_id IN (?)", projectTaskIDs(tx, id)).Delete(&models.TaskHistory{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.History = res.RowsAffected

	res = tx.Unscoped().
		Where("task_id IN (?) OR depends_on_id IN (?)", projectTaskIDs(tx, id), projectTaskIDs(tx, id)).
		Delete(&models.TaskDependency{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Dependencies = res.RowsAffected

	res = tx.Unscoped().Where("task_id IN (?)", projectTaskIDs(tx, id)).Delete(&models.Subtask{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Subtasks = res.RowsAffected

	// Snapshot blob paths before their rows disappear; the files are removed
	// only after the transaction commits.
	var blobPaths []string

	err := tx.Session(&gorm.Session{NewDB: true}).Unscoped().Model(&models.FileAttachment{}).
		Where("task_id IN (?)", projectTaskIDs(tx, id)).
		Pluck("path", &blobPaths).Error
	if err != nil {
		return result, nil, err
	}

	res = tx.Unscoped().Where("task_id IN (?)", projectTaskIDs(tx, id)).Delete(&models.FileAttachment{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Attachments = res.RowsAffected

	res = tx.Unscoped().Where("project_id = ?", id).Delete(&models.Task{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Tasks = res.RowsAffected

	res = tx.Unscoped().Delete(&models.Project{}, id)
	if res.Error != nil {
		return result, nil, res.Error
	}

	if res.RowsAffected == 0 {
		return result, nil, ErrNotFound
	}

	return result, blobPaths, nil
}
