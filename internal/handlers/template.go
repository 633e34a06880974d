package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/cache"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/types"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type CreateTemplateRequest struct {
	Name    string   `json:"name" binding:"required"`
	Columns []string `json:"columns" binding:"required,min=1"`
}

type TemplateResponse struct {
	ID      uint     `json:"id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

func CreateTemplate(ctx *gin.Context) {
	var body CreateTemplateRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	columns, err := json.Marshal(body.Columns)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid columns"})
		return
	}

	var existing models.BoardTemplate

	err = db.DB.Where("name = ?", body.Name).First(&existing).Error

	if err == nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": "Template name already exists"})
		return
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	template := models.BoardTemplate{
		Name:    body.Name,
		Columns: columns,
	}

	if err := db.DB.Create(&template).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create template"})
		return
	}

	cache.Invalidate()

	ctx.JSON(http.StatusCreated, TemplateResponse{
		ID:      template.ID,
		Name:    template.Name,
		Columns: body.Columns,
	})
}

func ListTemplates(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	key := cache.Key("templates.list")

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) ([]TemplateResponse, error) {
		var templates []models.BoardTemplate

		if err := db.DB.Find(&templates).Error; err != nil {
			return nil, err
		}

		response := make([]TemplateResponse, 0, len(templates))
		for _, template := range templates {
			columns, err := template.ColumnNames()
			if err != nil {
				return nil, err
			}
			response = append(response, TemplateResponse{
				ID:      template.ID,
				Name:    template.Name,
				Columns: columns,
			})
		}
		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve templates"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

// ApplyTemplate makes the template the project's status vocabulary and remaps
// existing task statuses positionally: the i-th old column becomes the i-th
// new column, and anything without a positional match lands in the first new
// column. The remap and the template switch commit together.
func ApplyTemplate(ctx *gin.Context) {
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

	templateID, err := utils.GetTemplateID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	var template models.BoardTemplate

	if err := db.DB.First(&template, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve template"})
		}
		return
	}

	newColumns, err := template.ColumnNames()

	if err != nil || len(newColumns) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Template has no columns"})
		return
	}

	oldColumns, err := boardColumns(projectID)

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve current columns"})
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		// Snapshot each column's task ids before renaming anything, so an
		// overlapping vocabulary (e.g. swapping two column names) cannot
		// remap a task twice.
		buckets := make([][]uint, len(oldColumns))

		for i, oldName := range oldColumns {
			if err := tx.Model(&models.Task{}).
				Where("project_id = ? AND status = ?", projectID, oldName).
				Pluck("id", &buckets[i]).Error; err != nil {
				return err
			}
		}

		var strayIDs []uint

		if err := tx.Model(&models.Task{}).
			Where("project_id = ? AND status NOT IN (?)", projectID, oldColumns).
			Pluck("id", &strayIDs).Error; err != nil {
			return err
		}

		for i, ids := range buckets {
			if len(ids) == 0 {
				continue
			}

			newName := newColumns[0]
			if i < len(newColumns) {
				newName = newColumns[i]
			}

			if err := tx.Model(&models.Task{}).
				Where("id IN (?)", ids).
				Update("status", newName).Error; err != nil {
				return err
			}
		}

		// Statuses outside the old vocabulary fold into the first column.
		if len(strayIDs) > 0 {
			if err := tx.Model(&models.Task{}).
				Where("id IN (?)", strayIDs).
				Update("status", newColumns[0]).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Project{}).
			Where("id = ?", projectID).
			Update("template_id", template.ID).Error
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply template"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusOK, gin.H{"message": "Template applied", "columns": newColumns})
}
