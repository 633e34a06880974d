package store

import (
	"os"
	"strconv"
	"time"

	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/types"
	"gorm.io/gorm"
)

// Rows are fetched in bounded batches so large boards do not spike memory.
const DefaultBatchSize = 1000

var batchSize = batchSizeFromEnv()

func batchSizeFromEnv() int {
	raw := os.Getenv("QUERY_BATCH_SIZE")
	if raw == "" {
		return DefaultBatchSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultBatchSize
	}
	return n
}

type TaskFilter struct {
	Status     string
	Priority   string
	AssigneeID *uint
	DueBefore  *time.Time
}

// ListTasks returns the live tasks of a project matching the filter, fetched
// in batches of at most batchSize rows.
func ListTasks(gdb *gorm.DB, projectID uint, filter TaskFilter) ([]models.Task, error) {
	q := gdb.Where("project_id = ?", projectID)

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}

	if filter.AssigneeID != nil {
		q = q.Where("assignee_id = ?", *filter.AssigneeID)
	}

	if filter.DueBefore != nil {
		q = q.Where("due_date IS NOT NULL AND due_date < ?", *filter.DueBefore)
	}

	var tasks []models.Task
	var batch []models.Task

	res := q.FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
		tasks = append(tasks, batch...)
		return nil
	})

	if res.Error != nil {
		return nil, res.Error
	}

	return tasks, nil
}

// ListProjectsForUser returns the live projects the user owns or is a member
// of.
func ListProjectsForUser(gdb *gorm.DB, userID uint) ([]models.Project, error) {
	var projects []models.Project

	err := gdb.
		Joins("LEFT JOIN project_memberships ON project_memberships.project_id = projects.id AND project_memberships.deleted_at IS NULL").
		Where("projects.owner_id = ? OR project_memberships.user_id = ?", userID, userID).
		Distinct("projects.*").
		Find(&projects).Error

	if err != nil {
		return nil, err
	}

	return projects, nil
}

// ListTrashedProjects returns the soft-deleted projects the user may restore
// or purge: those they own or hold a project_admin membership in. Global
// admins see every trashed project.
func ListTrashedProjects(gdb *gorm.DB, userID uint, admin bool) ([]models.Project, error) {
	var projects []models.Project

	q := gdb.Unscoped().Where("projects.deleted_at IS NOT NULL")

	if !admin {
		q = q.
			Joins("LEFT JOIN project_memberships ON project_memberships.project_id = projects.id AND project_memberships.deleted_at IS NULL").
			Where("projects.owner_id = ? OR (project_memberships.user_id = ? AND project_memberships.role = ?)",
				userID, userID, types.ProjectRoleAdmin).
			Distinct("projects.*")
	}

	if err := q.Find(&projects).Error; err != nil {
		return nil, err
	}

	return projects, nil
}
