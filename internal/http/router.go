package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	var queue QueueState
	if q, ok := cfg.TaskStatus.(QueueState); ok {
		queue = q
	}
	health := NewHealthController(cfg.Database, queue, cfg.RetryScheduler, cfg.Version)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Cloud migration endpoints
	if cfg.Migration != nil {
		migrationController := NewMigrationController(cfg.Migration, cfg.RetryScheduler)
		router.GET("/api/migration", migrationController.GetStatus)
		router.POST("/api/migration/run", migrationController.Run)
		router.POST("/api/migration/reset", migrationController.Reset)
		router.GET("/api/migration/events", migrationController.GetEvents)
	}

	// Task queue endpoints
	if cfg.TaskStatus != nil {
		tasksController := NewTasksController(cfg.TaskStatus)
		router.GET("/api/tasks/:id", tasksController.GetTaskStatus)
	}

	return router
}
