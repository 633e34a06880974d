package store

import (
	"errors"
	"log"
	"time"

	"github.com/taskboard-dev/taskboard/internal/models"
	"gorm.io/gorm"
)

var ErrProjectTrashed = errors.New("project is in trash")

func fetchAnyTask(gdb *gorm.DB, projectID, taskID uint) (*models.Task, error) {
	var task models.Task

	err := gdb.Unscoped().
		Where("id = ? AND project_id = ?", taskID, projectID).
		First(&task).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &task, nil
}

// SoftDeleteTask moves a single task to the trash.
func SoftDeleteTask(gdb *gorm.DB, projectID, taskID uint) error {
	task, err := fetchAnyTask(gdb, projectID, taskID)

	if err != nil {
		return err
	}

	if task.DeletedAt.Valid {
		return ErrAlreadyTrashed
	}

	res := gdb.Model(&models.Task{}).
		Where("id = ?", taskID).
		Update("deleted_at", time.Now())

	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// RestoreTask brings a soft-deleted task back, provided its project is not
// itself in the trash.
func RestoreTask(gdb *gorm.DB, projectID, taskID uint) error {
	task, err := fetchAnyTask(gdb, projectID, taskID)

	if err != nil {
		return err
	}

	if !task.DeletedAt.Valid {
		return ErrActiveTask
	}

	project, err := fetchAnyProject(gdb, projectID)

	if err != nil {
		return err
	}

	if project.DeletedAt.Valid {
		return ErrProjectTrashed
	}

	res := gdb.Unscoped().Model(&models.Task{}).
		Where("id = ?", taskID).
		Update("deleted_at", nil)

	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// PermanentDeleteTask physically removes a soft-deleted task and its child
// rows in dependency order: history, dependency edges touching either
// endpoint, subtasks, attachment metadata, then the task row.
func PermanentDeleteTask(gdb *gorm.DB, projectID, taskID uint) (CascadeResult, error) {
	task, err := fetchAnyTask(gdb, projectID, taskID)

	if err != nil {
		return CascadeResult{}, err
	}

	if !task.DeletedAt.Valid {
		return CascadeResult{}, ErrActiveTask
	}

	var result CascadeResult
	var blobPaths []string

	err = gdb.Transaction(func(tx *gorm.DB) error {
		var err error
		result, blobPaths, err = cascadeTaskDelete(tx, taskID)
		return err
	})

	if err != nil {
		return CascadeResult{}, err
	}

	removeBlobs(blobPaths)

	log.Printf("Permanently deleted task %d: %d history, %d dependencies, %d subtasks, %d attachments",
		taskID, result.History, result.Dependencies, result.Subtasks, result.Attachments)

	return result, nil
}

func cascadeTaskDelete(tx *gorm.DB, taskID uint) (CascadeResult, []string, error) {
	var result CascadeResult

	res := tx.Unscoped().Where("task_id = ?", taskID).Delete(&models.TaskHistory{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.History = res.RowsAffected

	res = tx.Unscoped().
		Where("task_id = ? OR depends_on_id = ?", taskID, taskID).
		Delete(&models.TaskDependency{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Dependencies = res.RowsAffected

	res = tx.Unscoped().Where("task_id = ?", taskID).Delete(&models.Subtask{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Subtasks = res.RowsAffected

	var blobPaths []string

	err := tx.Session(&gorm.Session{NewDB: true}).Unscoped().Model(&models.FileAttachment{}).
		Where("task_id = ?", taskID).
		Pluck("path", &blobPaths).Error
	if err != nil {
		return result, nil, err
	}

	res = tx.Unscoped().Where("task_id = ?", taskID).Delete(&models.FileAttachment{})
	if res.Error != nil {
		return result, nil, res.Error
	}
	result.Attachments = res.RowsAffected

	res = tx.Unscoped().Delete(&models.Task{}, taskID)
	if res.Error != nil {
		return result, nil, res.Error
	}

	if res.RowsAffected == 0 {
		return result, nil, ErrNotFound
	}
	result.Tasks = res.RowsAffected

	return result, blobPaths, nil
}
