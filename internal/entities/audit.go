package entities

import "time"

type AuditEventType string

const (
	AuditEventMigrationPrepare AuditEventType = "migration_prepare"
	AuditEventMigrationResume  AuditEventType = "migration_resume"
	AuditEventMigrationReset   AuditEventType = "migration_reset"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEvent is one entry of the migration history. It lives outside the
// migrated collections and is never pushed to the cloud.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	AttemptID   string         `gorm:"index;size:36" json:"attempt_id,omitempty"`
	Description string         `gorm:"size:500" json:"description"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
