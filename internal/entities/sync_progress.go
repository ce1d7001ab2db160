package entities

import (
	"time"
)

type SyncType string

const (
	SyncTypeCloudMigration SyncType = "cloud_migration"
)

type SyncStatus string

const (
	SyncStatusPristine  SyncStatus = "pristine"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncProgress tracks a long-running sync operation for display.
// For cloud migrations Processed counts enqueued actions and Succeeded
// counts enqueued records.
type SyncProgress struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SyncType    SyncType   `gorm:"size:50;uniqueIndex" json:"sync_type"`
	Status      SyncStatus `gorm:"size:20" json:"status"`
	AttemptID   string     `gorm:"size:36" json:"attempt_id,omitempty"`
	TotalItems  int        `json:"total_items"`
	Processed   int        `json:"processed"`
	Succeeded   int        `json:"succeeded"`
	CurrentItem string     `gorm:"size:512" json:"current_item,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (SyncProgress) TableName() string {
	return "sync_progress"
}
