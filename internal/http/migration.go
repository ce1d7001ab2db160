package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/notesync/internal/database"
	"github.com/mrlokans/notesync/internal/entities"
	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/onboarding"
)

// MigrationService is implemented by onboarding.Service.
type MigrationService interface {
	Run(ctx context.Context) (migration.Result, error)
	Status() (*onboarding.Status, error)
	Reset() error
	Events(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// RetrySchedule is implemented by scheduler.MigrationRetryScheduler.
type RetrySchedule interface {
	IsRunning() bool
	GetNextRunTime() *time.Time
}

// MigrationController exposes the cloud migration flow.
type MigrationController struct {
	service MigrationService
	retry   RetrySchedule
}

// NewMigrationController creates the controller. retry may be nil.
func NewMigrationController(service MigrationService, retry RetrySchedule) *MigrationController {
	return &MigrationController{service: service, retry: retry}
}

type migrationStatusResponse struct {
	*onboarding.Status
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// GetStatus handles GET /api/migration
func (mc *MigrationController) GetStatus(c *gin.Context) {
	status, err := mc.service.Status()
	if err != nil {
		respondInternalError(c, err, "migration status")
		return
	}
	response := migrationStatusResponse{Status: status}
	if mc.retry != nil {
		response.NextRetryAt = mc.retry.GetNextRunTime()
	}
	c.JSON(http.StatusOK, response)
}

// Run handles POST /api/migration/run
// Preparation runs within the request. Delivery continues in the background,
// hence 202.
func (mc *MigrationController) Run(c *gin.Context) {
	result, err := mc.service.Run(c.Request.Context())
	if errors.Is(err, onboarding.ErrAlreadyRunning) {
		respondError(c, http.StatusConflict, err.Error(), "already_running")
		return
	}
	if database.IsBusy(err) {
		respondError(c, http.StatusServiceUnavailable, "database is busy, try again later", "database_busy")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), "migration_failed")
		return
	}

	message := "migration prepared, " + mc.deliveryState()
	if result.Actions == 0 {
		message = "migration already prepared, " + mc.deliveryState()
	}
	respondAccepted(c, message, result)
}

func (mc *MigrationController) deliveryState() string {
	status, err := mc.service.Status()
	if err == nil && status != nil && !status.DeliveryReady {
		return "delivery not configured"
	}
	return "delivery started"
}

// Reset handles POST /api/migration/reset
func (mc *MigrationController) Reset(c *gin.Context) {
	err := mc.service.Reset()
	if errors.Is(err, onboarding.ErrAlreadyRunning) {
		respondError(c, http.StatusConflict, err.Error(), "already_running")
		return
	}
	if err != nil {
		respondInternalError(c, err, "migration reset")
		return
	}
	respondSuccess(c, "migration state reset", nil)
}

// GetEvents handles GET /api/migration/events
func (mc *MigrationController) GetEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	eventType := entities.AuditEventType(c.Query("type"))
	events, total, err := mc.service.Events(eventType, limit, (page-1)*limit)
	if err != nil {
		respondInternalError(c, err, "migration history")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"events":       events,
		"page":         page,
		"limit":        limit,
		"total_pages":  totalPages,
		"total_events": total,
	})
}
