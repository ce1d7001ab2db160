// Package audit keeps the history of cloud migration attempts.
//
// Events are written synchronously and never from inside the preparation
// transaction, which holds the database write lock.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/mrlokans/notesync/internal/database/audit"
	"github.com/mrlokans/notesync/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogPrepare records the outcome of a preparation attempt.
func (s *Service) LogPrepare(attemptID string, records, actions int, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventMigrationPrepare,
		AttemptID:   attemptID,
		Description: "Migration prepared",
		Status:      entities.AuditStatusSuccess,
	}

	metadata := map[string]any{
		"records": records,
		"actions": actions,
	}
	if mdBytes, e := json.Marshal(metadata); e == nil {
		event.Metadata = string(mdBytes)
	}

	if err != nil {
		event.Description = "Migration preparation failed"
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.logQuietly(event)
}

// LogResume records that delivery was restarted for an already prepared
// attempt.
func (s *Service) LogResume(attemptID string) {
	s.logQuietly(&entities.AuditEvent{
		EventType:   entities.AuditEventMigrationResume,
		AttemptID:   attemptID,
		Description: "Delivery resumed, preparation skipped",
		Status:      entities.AuditStatusSuccess,
	})
}

// LogReset records that the prepared state was cleared.
func (s *Service) LogReset(attemptID string) {
	s.logQuietly(&entities.AuditEvent{
		EventType:   entities.AuditEventMigrationReset,
		AttemptID:   attemptID,
		Description: "Migration state reset",
		Status:      entities.AuditStatusSuccess,
	})
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(attemptID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(attemptID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

// A lost audit entry must not fail the migration.
func (s *Service) logQuietly(event *entities.AuditEvent) {
	if err := s.repo.LogEvent(event); err != nil {
		log.Printf("Failed to log audit event: %v", err)
	}
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
