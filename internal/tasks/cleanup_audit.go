package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// DefaultAuditRetentionDays is how long migration history is kept.
const DefaultAuditRetentionDays = 90

// AuditEventCleaner provides the ability to delete old audit events.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask removes migration history older than the retention period.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for audit cleanup tasks.
func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
		},
	}
}

// CleanupAuditEventsProcessor creates a processor function for CleanupAuditEventsTask.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit event cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = DefaultAuditRetentionDays
		}

		deleted, err := cleaner.DeleteOldEvents(time.Duration(retentionDays) * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		log.Printf("[TASK] Removed %d migration audit events older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupAuditEventsQueue creates a backlite queue for audit cleanup tasks.
func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}

// ScheduleAuditCleanup queues a cleanup run after the given delay, unless
// one is already queued.
func (c *Client) ScheduleAuditCleanup(ctx context.Context, retentionDays int, after time.Duration) error {
	var queued bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM backlite_tasks WHERE queue = ?)`,
		CleanupAuditEventsTask{}.Config().Name,
	).Scan(&queued)
	if err != nil {
		return fmt.Errorf("check queued audit cleanup: %w", err)
	}
	if queued {
		return nil
	}

	_, err = c.client.Add(CleanupAuditEventsTask{RetentionDays: retentionDays}).
		Ctx(ctx).
		Wait(after).
		Save()
	if err != nil {
		return fmt.Errorf("schedule audit cleanup: %w", err)
	}
	return nil
}
