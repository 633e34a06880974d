package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/cache"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/store"
	"github.com/taskboard-dev/taskboard/internal/types"
	"github.com/taskboard-dev/taskboard/internal/utils"
)

type BoardColumn struct {
	Name  string         `json:"name"`
	Tasks []TaskResponse `json:"tasks"`
}

type BoardResponse struct {
	ProjectID uint          `json:"project_id"`
	Columns   []BoardColumn `json:"columns"`
}

// GetBoard groups the project's live tasks into its template's columns, in
// template order. Tasks whose status is not in the template land in a
// trailing column so nothing silently disappears from the board.
func GetBoard(ctx *gin.Context) {
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

	key := cache.Key("board.get", projectID)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) (BoardResponse, error) {
		columns, err := boardColumns(projectID)
		if err != nil {
			return BoardResponse{}, err
		}

		tasks, err := store.ListTasks(db.DB, projectID, store.TaskFilter{})
		if err != nil {
			return BoardResponse{}, err
		}

		response := BoardResponse{ProjectID: projectID}

		byStatus := make(map[string][]TaskResponse)
		for _, task := range tasks {
			byStatus[task.Status] = append(byStatus[task.Status], toTaskResponse(task))
		}

		for _, name := range columns {
			response.Columns = append(response.Columns, BoardColumn{
				Name:  name,
				Tasks: orEmpty(byStatus[name]),
			})
			delete(byStatus, name)
		}

		var stray []TaskResponse
		for _, leftover := range byStatus {
			stray = append(stray, leftover...)
		}
		if len(stray) > 0 {
			response.Columns = append(response.Columns, BoardColumn{
				Name:  "Uncategorized",
				Tasks: stray,
			})
		}

		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func orEmpty(tasks []TaskResponse) []TaskResponse {
	if tasks == nil {
		return []TaskResponse{}
	}
	return tasks
}

// boardColumns resolves the project's active template columns, falling back
// to the default vocabulary when no template is set.
func boardColumns(projectID uint) ([]string, error) {
	var project models.Project

	if err := db.DB.First(&project, projectID).Error; err != nil {
		return nil, err
	}

	if project.TemplateID == nil {
		return []string{types.StatusTodo, types.StatusInProgress, types.StatusDone}, nil
	}

	var template models.BoardTemplate

	if err := db.DB.First(&template, *project.TemplateID).Error; err != nil {
		return nil, err
	}

	return template.ColumnNames()
}
