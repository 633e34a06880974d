package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/taskboard-dev/taskboard/internal/handlers"
	"github.com/taskboard-dev/taskboard/internal/middleware"
	"github.com/taskboard-dev/taskboard/internal/types"
)

func NewRouter() *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/:project_id", middleware.AuthMiddleware(), handlers.WebSocket)

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
			auth.PATCH("/me", middleware.AuthMiddleware(), handlers.UpdateUser)
		}

		templates := api.Group("/templates", middleware.AuthMiddleware())
		{
			templates.POST("", handlers.CreateTemplate)
			templates.GET("", handlers.ListTemplates)
		}

		projects := api.Group("/projects", middleware.AuthMiddleware())
		{
			projects.POST("", handlers.CreateProject)
			projects.GET("", handlers.ListProjects)
			projects.GET("/trash", handlers.ListTrashedProjects)
			projects.GET("/:project_id", handlers.GetProject)
			projects.PATCH("/:project_id", handlers.UpdateProject)
			projects.DELETE("/:project_id", handlers.DeleteProject)
			projects.POST("/:project_id/restore", handlers.RestoreProject)
			projects.DELETE("/:project_id/permanent", handlers.PermanentDeleteProject)

			projects.GET("/:project_id/board", handlers.GetBoard)
			projects.POST("/:project_id/template/:template_id/apply", handlers.ApplyTemplate)

			projects.POST("/:project_id/members", handlers.AddMember)
			projects.GET("/:project_id/members", handlers.ListMembers)
			projects.DELETE("/:project_id/members/:user_id", handlers.RemoveMember)

			projects.POST("/:project_id/tasks", handlers.CreateTask)
			projects.GET("/:project_id/tasks", handlers.ListTasks)
			projects.GET("/:project_id/tasks/:task_id", handlers.GetTask)
			projects.PATCH("/:project_id/tasks/:task_id", handlers.UpdateTask)
			projects.DELETE("/:project_id/tasks/:task_id", handlers.DeleteTask)
			projects.POST("/:project_id/tasks/:task_id/restore", handlers.RestoreTask)
			projects.DELETE("/:project_id/tasks/:task_id/permanent", handlers.PermanentDeleteTask)
			projects.GET("/:project_id/tasks/:task_id/history", handlers.GetTaskHistory)

			projects.POST("/:project_id/tasks/:task_id/subtasks", handlers.CreateSubtask)
			projects.GET("/:project_id/tasks/:task_id/subtasks", handlers.ListSubtasks)
			projects.PATCH("/:project_id/tasks/:task_id/subtasks/:subtask_id", handlers.UpdateSubtask)
			projects.DELETE("/:project_id/tasks/:task_id/subtasks/:subtask_id", handlers.DeleteSubtask)

			projects.POST("/:project_id/tasks/:task_id/dependencies", handlers.CreateDependency)
			projects.GET("/:project_id/tasks/:task_id/dependencies", handlers.ListDependencies)
			projects.DELETE("/:project_id/tasks/:task_id/dependencies/:dependency_id", handlers.DeleteDependency)

			projects.POST("/:project_id/tasks/:task_id/attachments", handlers.UploadAttachment)
			projects.GET("/:project_id/tasks/:task_id/attachments", handlers.ListAttachments)
			projects.GET("/:project_id/tasks/:task_id/attachments/:attachment_id/download", handlers.DownloadAttachment)
			projects.DELETE("/:project_id/tasks/:task_id/attachments/:attachment_id", handlers.DeleteAttachment)
		}
	}

	return r
}
