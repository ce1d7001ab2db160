package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/notesync/internal/database"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// QueueState reports whether the sync queue workers are running.
type QueueState interface {
	Started() bool
}

type HealthController struct {
	db      *database.Database
	queue   QueueState
	retry   RetrySchedule
	version string
}

func NewHealthController(db *database.Database, queue QueueState, retry RetrySchedule, version string) *HealthController {
	return &HealthController{
		db:      db,
		queue:   queue,
		retry:   retry,
		version: version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	// Check database connectivity
	if h.db != nil {
		sqlDB, err := h.db.SQLDB()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	// The queue only runs once the migration has been prepared
	switch {
	case h.queue == nil:
		checks["sync_queue"] = "not configured"
	case h.queue.Started():
		checks["sync_queue"] = "running"
	default:
		checks["sync_queue"] = "idle"
	}

	switch {
	case h.retry == nil:
		checks["migration_retry"] = "not configured"
	case h.retry.IsRunning():
		checks["migration_retry"] = "scheduled"
	default:
		checks["migration_retry"] = "disabled"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
