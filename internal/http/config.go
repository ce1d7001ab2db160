package http

import (
	"github.com/mrlokans/notesync/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database

	// Cloud migration flow
	Migration MigrationService

	// Task queue (optional)
	TaskStatus TaskStatusReader

	// Scheduled migration retries (optional)
	RetryScheduler RetrySchedule

	// Application info
	Version string
}
