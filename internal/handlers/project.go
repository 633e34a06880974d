package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/authz"
	"github.com/taskboard-dev/taskboard/internal/cache"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/store"
	"github.com/taskboard-dev/taskboard/internal/types"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type CreateProjectRequest struct {
	Name           string     `json:"name" binding:"required"`
	Description    string     `json:"description"`
	Deadline       *time.Time `json:"deadline"`
	DiscordWebhook string     `json:"discord_webhook"`
	SlackWebhook   string     `json:"slack_webhook"`
}

type UpdateProjectRequest struct {
	Name           string     `json:"name" binding:"required"`
	Description    string     `json:"description"`
	Deadline       *time.Time `json:"deadline"`
	DiscordWebhook string     `json:"discord_webhook"`
	SlackWebhook   string     `json:"slack_webhook"`
}

type ProjectResponse struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	OwnerID     uint       `json:"owner_id"`
	TemplateID  *uint      `json:"template_id"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func toProjectResponse(project models.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Deadline:    project.Deadline,
		OwnerID:     project.OwnerID,
		TemplateID:  project.TemplateID,
	}

	if project.DeletedAt.Valid {
		t := project.DeletedAt.Time
		resp.DeletedAt = &t
	}

	return resp
}

func CreateProject(ctx *gin.Context) {
	var body CreateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	project := models.Project{
		Name:           body.Name,
		Description:    body.Description,
		Deadline:       body.Deadline,
		OwnerID:        userID,
		DiscordWebhook: body.DiscordWebhook,
		SlackWebhook:   body.SlackWebhook,
	}

	// Project plus the owner's project_admin membership commit together.
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		membership := models.ProjectMembership{
			UserID:    userID,
			ProjectID: project.ID,
			Role:      types.ProjectRoleAdmin,
		}

		return tx.Create(&membership).Error
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	mutated(project.ID)

	ctx.JSON(http.StatusCreated, toProjectResponse(project))
}

func ListProjects(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	key := cache.Key("projects.list", userID)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) ([]ProjectResponse, error) {
		projects, err := store.ListProjectsForUser(db.DB, userID)
		if err != nil {
			return nil, err
		}

		response := make([]ProjectResponse, 0, len(projects))
		for _, project := range projects {
			response = append(response, toProjectResponse(project))
		}
		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func GetProject(ctx *gin.Context) {
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

	key := cache.Key("projects.get", projectID)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) (ProjectResponse, error) {
		var project models.Project
		if err := db.DB.First(&project, projectID).Error; err != nil {
			return ProjectResponse{}, err
		}
		return toProjectResponse(project), nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve project"})
		}
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func UpdateProject(ctx *gin.Context) {
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

	var body UpdateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !requireAccess(ctx, userID, projectID) {
		return
	}

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	var project models.Project

	if err := db.DB.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve project"})
		}
		return
	}

	project.Name = body.Name
	project.Description = body.Description
	project.Deadline = body.Deadline
	project.DiscordWebhook = body.DiscordWebhook
	project.SlackWebhook = body.SlackWebhook

	if err := db.DB.Save(&project).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	mutated(project.ID)

	ctx.JSON(http.StatusOK, toProjectResponse(project))
}

// DeleteProject moves the project and its live tasks to the trash.
func DeleteProject(ctx *gin.Context) {
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

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	if err := store.SoftDeleteProject(db.DB, projectID); err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}

func RestoreProject(ctx *gin.Context) {
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

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	if err := store.RestoreProject(db.DB, projectID); err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, gin.H{"message": "Project restored"})
}

func PermanentDeleteProject(ctx *gin.Context) {
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

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	result, err := store.PermanentDeleteProject(db.DB, projectID)

	if err != nil {
		respondStoreError(ctx, err)
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Project permanently deleted",
		"removed": result,
		"total":   result.Total(),
	})
}

func ListTrashedProjects(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	key := cache.Key("projects.trash", userID)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) ([]ProjectResponse, error) {
		projects, err := store.ListTrashedProjects(db.DB, userID, authz.IsAdmin(db.DB, userID))
		if err != nil {
			return nil, err
		}

		response := make([]ProjectResponse, 0, len(projects))
		for _, project := range projects {
			response = append(response, toProjectResponse(project))
		}
		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trash"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func respondStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, store.ErrAlreadyTrashed):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Already in trash"})
	case errors.Is(err, store.ErrActiveProject):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Cannot permanently delete an active project"})
	case errors.Is(err, store.ErrActiveTask):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Cannot permanently delete an active task"})
	case errors.Is(err, store.ErrProjectTrashed):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Project is in trash"})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
