package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/storage"
	"github.com/taskboard-dev/taskboard/internal/utils"
	"gorm.io/gorm"
)

type AttachmentResponse struct {
	ID          uint   `json:"id"`
	TaskID      uint   `json:"task_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func toAttachmentResponse(a models.FileAttachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID,
		TaskID:      a.TaskID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
	}
}

func UploadAttachment(ctx *gin.Context) {
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

	fileHeader, err := ctx.FormFile("file")

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	f, err := fileHeader.Open()

	if err != nil {
		log.Printf("Failed to open uploaded file: %v", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}
	defer f.Close()

	path, err := storage.Save(f, fileHeader.Filename)

	if err != nil {
		log.Printf("Failed to store attachment: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	attachment := models.FileAttachment{
		TaskID:      taskID,
		Filename:    fileHeader.Filename,
		Path:        path,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
	}

	if err := db.DB.Create(&attachment).Error; err != nil {
		if removeErr := storage.Remove(path); removeErr != nil {
			log.Printf("Failed to clean up stored file %s: %v", path, removeErr)
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save attachment"})
		return
	}

	mutated(projectID)

	ctx.JSON(http.StatusCreated, toAttachmentResponse(attachment))
}

// ListAttachments returns the task's attachment rows, lazily pruning any row
// whose file is gone from disk.
func ListAttachments(ctx *gin.Context) {
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

	var attachments []models.FileAttachment

	if err := db.DB.Where("task_id = ?", taskID).Find(&attachments).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attachments"})
		return
	}

	response := make([]AttachmentResponse, 0, len(attachments))

	for _, attachment := range attachments {
		if !storage.Exists(attachment.Path) {
			log.Printf("Pruning orphaned attachment %d (%s)", attachment.ID, attachment.Path)
			if err := db.DB.Unscoped().Delete(&models.FileAttachment{}, attachment.ID).Error; err != nil {
				log.Printf("Failed to prune attachment %d: %v", attachment.ID, err)
			}
			continue
		}
		response = append(response, toAttachmentResponse(attachment))
	}

	ctx.JSON(http.StatusOK, response)
}

func DownloadAttachment(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	attachmentID, err := utils.GetAttachmentID(ctx)

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

	var attachment models.FileAttachment

	if err := db.DB.Where("id = ? AND task_id = ?", attachmentID, taskID).First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attachment"})
		}
		return
	}

	if !storage.Exists(attachment.Path) {
		log.Printf("Pruning orphaned attachment %d (%s)", attachment.ID, attachment.Path)
		if err := db.DB.Unscoped().Delete(&models.FileAttachment{}, attachment.ID).Error; err != nil {
			log.Printf("Failed to prune attachment %d: %v", attachment.ID, err)
		}
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
		return
	}

	ctx.FileAttachment(attachment.Path, attachment.Filename)
}

func DeleteAttachment(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, taskID, ok := taskParams(ctx)

	if !ok {
		return
	}

	attachmentID, err := utils.GetAttachmentID(ctx)

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

	var attachment models.FileAttachment

	if err := db.DB.Where("id = ? AND task_id = ?", attachmentID, taskID).First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attachment"})
		}
		return
	}

	if err := db.DB.Unscoped().Delete(&attachment).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete attachment"})
		return
	}

	if err := storage.Remove(attachment.Path); err != nil {
		log.Printf("Failed to remove stored file %s: %v", attachment.Path, err)
	}

	mutated(projectID)

	ctx.Status(http.StatusNoContent)
}
