package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/cloud"
	"github.com/mrlokans/notesync/internal/config"
	"github.com/mrlokans/notesync/internal/database"
	auditRepo "github.com/mrlokans/notesync/internal/database/audit"
	http_controllers "github.com/mrlokans/notesync/internal/http"
	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/onboarding"
	"github.com/mrlokans/notesync/internal/scheduler"
	"github.com/mrlokans/notesync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting notesync v%s", version)

	if cfg.Cloud.BackendURL == "" {
		log.Printf("WARNING: Cloud backend URL is not set. Migrations are prepared but not delivered until 'CLOUD_BACKEND_URL' is configured.")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	sqlDB, err := db.SQLDB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for task queue: %v", err)
	}

	// The queue shares the connection pool so preparation can enqueue
	// inside the store transaction.
	uploader := cloud.NewClient(cfg.Cloud.BackendURL, cfg.Cloud.Token)
	taskClient, err := tasks.NewClient(sqlDB, tasks.Config{
		Workers:         cfg.Tasks.Workers,
		ReleaseAfter:    cfg.Tasks.ReleaseAfter,
		CleanupInterval: cfg.Tasks.CleanupInterval,
		PollInterval:    cfg.Tasks.PollInterval,
	})
	if err != nil {
		log.Fatalf("Failed to initialize task queue: %v", err)
	}
	auditService := audit.NewService(auditRepo.NewRepository(db.DB))

	taskClient.Register(
		tasks.NewPushObjectQueue(uploader, taskClient),
		tasks.NewExecuteClientInstructionsQueue(uploader),
		tasks.NewCleanupAuditEventsQueue(auditService),
	)

	taskCtx, taskCtxCancel := context.WithCancel(context.Background())

	// Runs once the dispatcher is started by the migration. Already queued
	// after a restart.
	if err := taskClient.ScheduleAuditCleanup(taskCtx, cfg.Migration.AuditRetentionDays, time.Hour); err != nil {
		log.Printf("WARNING: Failed to schedule audit cleanup: %v", err)
	}

	migrationService := onboarding.NewService(onboarding.Dependencies{
		DB:      db.DB,
		Store:   db,
		Counter: db,
		Enqueuer: func(attemptID string) migration.EnqueueFunc {
			return taskClient.Enqueuer(attemptID)
		},
		Starter:    deliveryStarter(cfg.Cloud, taskClient),
		Redelivery: taskClient,
		Audit:      auditService,
	}, onboarding.Config{ChunkSize: cfg.Migration.ChunkSize})

	// Resume delivery of a migration prepared before the last restart
	if status, err := migrationService.Status(); err != nil {
		log.Printf("WARNING: Failed to read migration status: %v", err)
	} else if status.Prepared && status.DeliveryReady {
		if _, err := migrationService.Run(taskCtx); err != nil {
			log.Printf("WARNING: Failed to resume migration delivery: %v", err)
		}
	}

	retryScheduler := scheduler.NewMigrationRetryScheduler(migrationService, scheduler.RetryConfig{
		Enabled:  cfg.MigrationRetry.Enabled,
		Schedule: cfg.MigrationRetry.Schedule,
	})
	if err := retryScheduler.Start(taskCtx); err != nil {
		log.Printf("WARNING: Failed to start migration retry scheduler: %v", err)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Migration:      migrationService,
		TaskStatus:     taskClient,
		RetryScheduler: retryScheduler,
		Version:        version,
	})

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		retryScheduler.Stop()
		taskClient.Stop(ctx)
		taskCtxCancel()
	}

	Serve(router, cfg, onShutdown)
}

// deliveryStarter returns nil when no backend is configured, so
// migrations are prepared but nothing tries to deliver them.
func deliveryStarter(cloudCfg config.Cloud, queue *tasks.Client) onboarding.Starter {
	if cloudCfg.BackendURL == "" {
		return nil
	}
	return queue
}
