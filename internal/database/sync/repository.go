// Package sync provides database operations for sync progress tracking.
//
// The cloud migration flow records the start and outcome of each attempt
// here so the status survives restarts.
//
// # Usage
//
//	repo := sync.NewRepository(db)
//	err := repo.StartSync(attemptID, 0)
package sync

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/notesync/internal/entities"
)

// staleAfter is how long a running sync may go without an update before it
// is considered interrupted.
const staleAfter = 10 * time.Minute

// Repository handles all sync progress database operations.
type Repository struct {
	db       *gorm.DB
	syncType entities.SyncType
}

// NewRepository creates a new sync repository for cloud migrations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, syncType: entities.SyncTypeCloudMigration}
}

// GetSyncProgress retrieves the sync progress for the configured sync type.
func (r *Repository) GetSyncProgress() (*entities.SyncProgress, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// Snapshot is GetSyncProgress that reports a never-started sync as pristine.
func (r *Repository) Snapshot() (*entities.SyncProgress, error) {
	progress, err := r.GetSyncProgress()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entities.SyncProgress{SyncType: r.syncType, Status: entities.SyncStatusPristine}, nil
	}
	return progress, err
}

// StartSync creates or resets the sync progress record.
func (r *Repository) StartSync(attemptID string, totalItems int) error {
	var progress entities.SyncProgress
	result := r.db.Where("sync_type = ?", r.syncType).First(&progress)

	now := time.Now()
	if result.Error == gorm.ErrRecordNotFound {
		progress = entities.SyncProgress{
			SyncType:   r.syncType,
			Status:     entities.SyncStatusRunning,
			AttemptID:  attemptID,
			TotalItems: totalItems,
			StartedAt:  now,
			UpdatedAt:  now,
		}
		return r.db.Create(&progress).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Reset existing record
	progress.Status = entities.SyncStatusRunning
	progress.AttemptID = attemptID
	progress.TotalItems = totalItems
	progress.Processed = 0
	progress.Succeeded = 0
	progress.CurrentItem = ""
	progress.Error = ""
	progress.StartedAt = now
	progress.UpdatedAt = now
	progress.CompletedAt = nil

	return r.db.Save(&progress).Error
}

// UpdateProgress records the counters of an ongoing sync.
func (r *Repository) UpdateProgress(processed, succeeded int, currentItem string) error {
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(map[string]any{
			"processed":    processed,
			"succeeded":    succeeded,
			"current_item": currentItem,
			"updated_at":   time.Now(),
		}).Error
}

// CompleteSync marks a sync as completed or failed.
func (r *Repository) CompleteSync(succeeded bool, errorMsg string) error {
	now := time.Now()
	status := entities.SyncStatusCompleted
	if !succeeded {
		status = entities.SyncStatusFailed
	}

	updates := map[string]any{
		"status":       status,
		"current_item": "",
		"updated_at":   now,
		"completed_at": now,
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(updates).Error
}

// Reset forgets any recorded progress.
func (r *Repository) Reset() error {
	return r.db.Where("sync_type = ?", r.syncType).Delete(&entities.SyncProgress{}).Error
}

// IsSyncRunning checks if a sync is currently in progress.
// A sync that has not been updated for staleAfter is marked failed.
func (r *Repository) IsSyncRunning() (bool, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ? AND status = ?", r.syncType, entities.SyncStatusRunning).First(&progress).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if progress.UpdatedAt.Before(time.Now().Add(-staleAfter)) {
		_ = r.CompleteSync(false, "sync was interrupted")
		return false, nil
	}

	return true, nil
}
