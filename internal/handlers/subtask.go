package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/types"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type CreateSubtaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type UpdateSubtaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Completed   *bool   `json:"completed"`
}

type SubtaskResponse struct {
	ID          uint      `json:"id"`
	TaskID      uint      `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Completed   bool      `json:"completed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toSubtaskResponse(subtask models.Subtask) SubtaskResponse {
	return SubtaskResponse{
		ID:          subtask.ID,
		TaskID:      subtask.TaskID,
		Title:       subtask.Title,
		Description: subtask.Description,
		Status:      subtask.Status,
		Completed:   subtask.Completed,
		UpdatedAt:   subtask.UpdatedAt,
	}
}

// fetchLiveTask loads a non-deleted task scoped to its project, answering 404
// for anything else.
func fetchLiveTask(ctx *gin.Context, projectID, taskID uint) (*models.Task, bool) {
	var task models.Task

	if err := db.DB.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		}
		return nil, false
	}

	return &task, true
}

func CreateSubtask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	var body CreateSubtaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if _, ok := fetchLiveTask(ctx, projectID, taskID); !ok {
		return
	}

	if body.Status == "" {
		body.Status = types.StatusTodo
	}

	subtask := models.Subtask{
		TaskID:      taskID,
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
	}

	if err := db.DB.Create(&subtask).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subtask"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusCreated, toSubtaskResponse(subtask))
}

func ListSubtasks(ctx *gin.Context) {
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

	if _, ok := fetchLiveTask(ctx, projectID, taskID); !ok {
		return
	}

	var subtasks []models.Subtask

	if err := db.DB.Where("task_id = ?", taskID).Find(&subtasks).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve subtasks"})
		return
	}

	response := make([]SubtaskResponse, 0, len(subtasks))

	for _, subtask := range subtasks {
		response = append(response, toSubtaskResponse(subtask))
	}

	ctx.JSON(http.StatusOK, response)
}

func UpdateSubtask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	subtaskID, err := utils.GetSubtaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateSubtaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if _, ok := fetchLiveTask(ctx, projectID, taskID); !ok {
		return
	}

	var subtask models.Subtask

	if err := db.DB.Where("id = ? AND task_id = ?", subtaskID, taskID).First(&subtask).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Subtask not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve subtask"})
		}
		return
	}

	updates := make(map[string]interface{})

	if body.Title != nil {
		updates["title"] = *body.Title
	}

	if body.Description != nil {
		updates["description"] = *body.Description
	}

	if body.Status != nil {
		updates["status"] = *body.Status
	}

	if body.Completed != nil {
		updates["completed"] = *body.Completed
	}

	if len(updates) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No valid fields to update"})
		return
	}

	// Updates touches updated_at automatically.
	if err := db.DB.Model(&subtask).Updates(updates).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subtask"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, toSubtaskResponse(subtask))
}

func DeleteSubtask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	subtaskID, err := utils.GetSubtaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if _, ok := fetchLiveTask(ctx, projectID, taskID); !ok {
		return
	}

	res := db.DB.Where("id = ? AND task_id = ?", subtaskID, taskID).Delete(&models.Subtask{})

	if res.Error != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subtask"})
		return
	}

	if res.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Subtask not found"})
		return
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}
