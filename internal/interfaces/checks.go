package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/cloud"
	"github.com/mrlokans/notesync/internal/database"
	"github.com/mrlokans/notesync/internal/http"
	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/onboarding"
	"github.com/mrlokans/notesync/internal/scheduler"
	"github.com/mrlokans/notesync/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Store implementations
var _ migration.Store = (*database.Database)(nil)
var _ database.Reader = (*database.Database)(nil)

// Counter implementations
var _ onboarding.Counter = (*database.Database)(nil)

// =============================================================================
// Sync Queue
// =============================================================================

// Starter implementations
var _ onboarding.Starter = (*tasks.Client)(nil)
var _ onboarding.Redelivery = (*tasks.Client)(nil)

// PushOrder implementations
var _ tasks.PushOrder = (*tasks.Client)(nil)

// TaskStatusReader implementations
var _ http.TaskStatusReader = (*tasks.Client)(nil)
var _ http.QueueState = (*tasks.Client)(nil)

// AuditEventCleaner implementations
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// External Services
// =============================================================================

// Uploader implementations
var _ cloud.Uploader = (*cloud.Client)(nil)

// =============================================================================
// Migration Flow
// =============================================================================

// MigrationService implementations
var _ http.MigrationService = (*onboarding.Service)(nil)
var _ scheduler.Migrator = (*onboarding.Service)(nil)

// RetrySchedule implementations
var _ http.RetrySchedule = (*scheduler.MigrationRetryScheduler)(nil)
