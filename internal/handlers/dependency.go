package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type CreateDependencyRequest struct {
	DependsOnID uint `json:"depends_on_id" binding:"required"`
}

type DependencyResponse struct {
	ID          uint `json:"id"`
	TaskID      uint `json:"task_id"`
	DependsOnID uint `json:"depends_on_id"`
}

func CreateDependency(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	var body CreateDependencyRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if body.DependsOnID == taskID {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "A task cannot depend on itself"})
		return
	}

	// Both endpoints must be live tasks of this project.
	if _, ok := fetchLiveTask(ctx, projectID, taskID); !ok {
		return
	}

	if _, ok := fetchLiveTask(ctx, projectID, body.DependsOnID); !ok {
		return
	}

	var existing models.TaskDependency

	err = db.DB.Where("task_id = ? AND depends_on_id = ?", taskID, body.DependsOnID).First(&existing).Error

	if err == nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": "Dependency already exists"})
		return
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	dependency := models.TaskDependency{
		TaskID:      taskID,
		DependsOnID: body.DependsOnID,
	}

	if err := db.DB.Create(&dependency).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create dependency"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusCreated, DependencyResponse{
		ID:          dependency.ID,
		TaskID:      dependency.TaskID,
		DependsOnID: dependency.DependsOnID,
	})
}

func ListDependencies(ctx *gin.Context) {
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

	var dependencies []models.TaskDependency

	if err := db.DB.Where("task_id = ?", taskID).Find(&dependencies).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve dependencies"})
		return
	}

	response := make([]DependencyResponse, 0, len(dependencies))

	for _, d := range dependencies {
		response = append(response, DependencyResponse{
			ID:          d.ID,
			TaskID:      d.TaskID,
			DependsOnID: d.DependsOnID,
		})
	}

	ctx.JSON(http.StatusOK, response)
}

func DeleteDependency(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	dependencyID, err := utils.GetDependencyID(ctx)

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

	res := db.DB.Where("id = ? AND task_id = ?", dependencyID, taskID).Delete(&models.TaskDependency{})

	if res.Error != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete dependency"})
		return
	}

	if res.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Dependency not found"})
		return
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}
