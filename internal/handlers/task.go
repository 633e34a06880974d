package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/cache"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/store"
	"github.com/taskboard-dev/taskboard/internal/types"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

type TaskResponse struct {
	ID          uint       `json:"id"`
	ProjectID   uint       `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  *uint      `json:"assignee_id"`
	CreatorID   uint       `json:"creator_id"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type TaskHistoryResponse struct {
	ID        uint      `json:"id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	UserID    uint      `json:"user_id"`
	ChangedAt time.Time `json:"changed_at"`
}

func toTaskResponse(task models.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		ProjectID:   task.ProjectID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		AssigneeID:  task.AssigneeID,
		CreatorID:   task.CreatorID,
		DueDate:     task.DueDate,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func CreateTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body CreateTaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if body.Priority == "" {
		body.Priority = types.PriorityMedium
	}

	if !types.ValidPriority(body.Priority) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid priority"})
		return
	}

	if body.Status == "" {
		body.Status = types.StatusTodo
	}

	if body.AssigneeID != nil && !isProjectMember(*body.AssigneeID, projectID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Assignee is not a project member"})
		return
	}

	task := models.Task{
		ProjectID:   projectID,
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
		AssigneeID:  body.AssigneeID,
		CreatorID:   userID,
		DueDate:     body.DueDate,
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}

		history := models.TaskHistory{
			TaskID:    task.ID,
			UserID:    userID,
			Field:     "created",
			NewValue:  task.Title,
			ChangedAt: time.Now(),
		}

		return tx.Create(&history).Error
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusCreated, toTaskResponse(task))
}

func ListTasks(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	filter, err := taskFilterFromQuery(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := cache.Key("tasks.list", projectID, filter.Status, filter.Priority, filter.AssigneeID, filter.DueBefore)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) ([]TaskResponse, error) {
		tasks, err := store.ListTasks(db.DB, projectID, filter)
		if err != nil {
			return nil, err
		}

		response := make([]TaskResponse, 0, len(tasks))
		for _, task := range tasks {
			response = append(response, toTaskResponse(task))
		}
		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tasks"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func taskFilterFromQuery(ctx *gin.Context) (store.TaskFilter, error) {
	var filter store.TaskFilter

	filter.Status = ctx.Query("status")
	filter.Priority = ctx.Query("priority")

	if raw := ctx.Query("assignee_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return filter, errors.New("Invalid assignee_id")
		}
		assignee := uint(id)
		filter.AssigneeID = &assignee
	}

	if raw := ctx.Query("due_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("Invalid due_before, expected RFC 3339")
		}
		filter.DueBefore = &t
	}

	return filter, nil
}

func GetTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	var task models.Task

	if err := db.DB.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		}
		return
	}

	ctx.JSON(http.StatusOK, toTaskResponse(task))
}

// UpdateTask applies the provided fields and appends one history row per
// changed field, all in one transaction.
func UpdateTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	var body UpdateTaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if body.Priority != nil && !types.ValidPriority(*body.Priority) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid priority"})
		return
	}

	if body.AssigneeID != nil && !isProjectMember(*body.AssigneeID, projectID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Assignee is not a project member"})
		return
	}

	var task models.Task

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
			return err
		}

		now := time.Now()
		updates := make(map[string]interface{})
		var history []models.TaskHistory

		record := func(field, oldValue, newValue string) {
			history = append(history, models.TaskHistory{
				TaskID:    task.ID,
				UserID:    userID,
				Field:     field,
				OldValue:  oldValue,
				NewValue:  newValue,
				ChangedAt: now,
			})
		}

		if body.Title != nil && *body.Title != task.Title {
			record("title", task.Title, *body.Title)
			updates["title"] = *body.Title
		}

		if body.Description != nil && *body.Description != task.Description {
			record("description", task.Description, *body.Description)
			updates["description"] = *body.Description
		}

		if body.Status != nil && *body.Status != task.Status {
			record("status", task.Status, *body.Status)
			updates["status"] = *body.Status
		}

		if body.Priority != nil && *body.Priority != task.Priority {
			record("priority", task.Priority, *body.Priority)
			updates["priority"] = *body.Priority
		}

		if body.AssigneeID != nil && (task.AssigneeID == nil || *task.AssigneeID != *body.AssigneeID) {
			record("assignee", formatAssignee(task.AssigneeID), fmt.Sprintf("%d", *body.AssigneeID))
			updates["assignee_id"] = *body.AssigneeID
		}

		if body.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*body.DueDate)) {
			record("due_date", formatDueDate(task.DueDate), body.DueDate.Format(time.RFC3339))
			updates["due_date"] = *body.DueDate
		}

		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&task).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Create(&history).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		}
		return
	}

	mutated(projectID)

	if err := db.DB.First(&task, taskID).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		return
	}

	ctx.JSON(http.StatusOK, toTaskResponse(task))
}

func formatAssignee(id *uint) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%d", *id)
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// DeleteTask moves a task to the trash.
func DeleteTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if err := store.SoftDeleteTask(db.DB, projectID, taskID); err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}

func RestoreTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if err := store.RestoreTask(db.DB, projectID, taskID); err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, gin.H{"message": "Task restored"})
}

func PermanentDeleteTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	result, err := store.PermanentDeleteTask(db.DB, projectID, taskID)

	if err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Task permanently deleted",
		"removed": result,
		"total":   result.Total(),
	})
}

func GetTaskHistory(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	var task models.Task

	if err := db.DB.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	var history []models.TaskHistory

	if err := db.DB.Where("task_id = ?", taskID).Order("changed_at DESC").Find(&history).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	response := make([]TaskHistoryResponse, 0, len(history))

	for _, h := range history {
		response = append(response, TaskHistoryResponse{
			ID:        h.ID,
			Field:     h.Field,
			OldValue:  h.OldValue,
			NewValue:  h.NewValue,
			UserID:    h.UserID,
			ChangedAt: h.ChangedAt,
		})
	}

	ctx.JSON(http.StatusOK, response)
}

func taskParams(ctx *gin.Context) (uint, uint, bool) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}

	taskID, err := utils.GetTaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}

	return projectID, taskID, true
}

func isProjectMember(userID, projectID uint) bool {
	var count int64

	err := db.DB.Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&count).Error

	if err != nil {
		return false
	}

	return count > 0
}
