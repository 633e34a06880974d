package handlers

import (
	"context"
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

type AddMemberRequest struct {
	Username string `json:"username" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type MemberResponse struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func validProjectRole(role string) bool {
	switch role {
	case types.ProjectRoleAdmin, types.ProjectRoleManager, types.ProjectRoleMember:
		return true
	}
	return false
}

func AddMember(ctx *gin.Context) {
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

	var body AddMemberRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !validProjectRole(body.Role) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	var member models.User

	if err := db.DB.Where("username = ?", body.Username).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	var existing models.ProjectMembership

	err = db.DB.Where("user_id = ? AND project_id = ?", member.ID, projectID).First(&existing).Error

	if err == nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	membership := models.ProjectMembership{
		UserID:    member.ID,
		ProjectID: projectID,
		Role:      body.Role,
	}

	if err := db.DB.Create(&membership).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusCreated, MemberResponse{
		UserID:   member.ID,
		Username: member.Username,
		Name:     member.Name,
		Role:     membership.Role,
	})
}

func ListMembers(ctx *gin.Context) {
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

	key := cache.Key("members.list", projectID)

	response, err := cache.Fetch(ctx.Request.Context(), userID, key, func(context.Context) ([]MemberResponse, error) {
		var memberships []models.ProjectMembership

		err := db.DB.Preload("User").Where("project_id = ?", projectID).Find(&memberships).Error
		if err != nil {
			return nil, err
		}

		response := make([]MemberResponse, 0, len(memberships))
		for _, m := range memberships {
			response = append(response, MemberResponse{
				UserID:   m.UserID,
				Username: m.User.Username,
				Name:     m.User.Name,
				Role:     m.Role,
			})
		}
		return response, nil
	})

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve members"})
		return
	}

	ctx.Header("ETag", cache.ETag(response))
	ctx.JSON(http.StatusOK, response)
}

func RemoveMember(ctx *gin.Context) {
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

	memberID, err := utils.GetUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireRole(ctx, userID, projectID, types.ProjectRoleAdmin) {
		return
	}

	var project models.Project

	if err := db.DB.First(&project, projectID).Error; err == nil && project.OwnerID == memberID {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove the project owner"})
		return
	}

	res := db.DB.Where("user_id = ? AND project_id = ?", memberID, projectID).
		Delete(&models.ProjectMembership{})

	if res.Error != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}

	if res.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
		return
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}
