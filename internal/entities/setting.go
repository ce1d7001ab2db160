package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return CollectionSettings
}

// Known setting keys
const (
	// Cloud migration bookkeeping, written by the migration flow once
	// preparation has committed.
	SettingKeyCloudMigrationPrepared   = "personal_cloud_migration_prepared"
	SettingKeyCloudMigrationPreparedAt = "personal_cloud_migration_prepared_at"
	SettingKeyCloudMigrationAttempt    = "personal_cloud_migration_attempt"
)
