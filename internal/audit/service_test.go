package audit

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditRepo "github.com/mrlokans/notesync/internal/database/audit"
	"github.com/mrlokans/notesync/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	repo := auditRepo.NewRepository(db)
	svc := NewService(repo)

	return svc, db
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventMigrationPrepare,
		AttemptID:   "attempt-1",
		Description: "Test event",
		Status:      entities.AuditStatusSuccess,
	}

	err := svc.Log(event)
	require.NoError(t, err)

	var saved entities.AuditEvent
	err = db.First(&saved, event.ID).Error
	require.NoError(t, err)
	assert.Equal(t, "attempt-1", saved.AttemptID)
}

func TestService_LogPrepare(t *testing.T) {
	svc, db := setupTestService(t)

	t.Run("successful preparation", func(t *testing.T) {
		svc.LogPrepare("attempt-ok", 1204, 14, nil)

		var event entities.AuditEvent
		err := db.Where("attempt_id = ?", "attempt-ok").First(&event).Error
		require.NoError(t, err)
		assert.Equal(t, entities.AuditEventMigrationPrepare, event.EventType)
		assert.Equal(t, entities.AuditStatusSuccess, event.Status)
		assert.JSONEq(t, `{"records":1204,"actions":14}`, event.Metadata)
		assert.Empty(t, event.ErrorMsg)
	})

	t.Run("failed preparation", func(t *testing.T) {
		svc.LogPrepare("attempt-failed", 0, 0, errors.New("enqueue pages at offset 500: disk full"))

		var event entities.AuditEvent
		err := db.Where("attempt_id = ?", "attempt-failed").First(&event).Error
		require.NoError(t, err)
		assert.Equal(t, entities.AuditStatusFailed, event.Status)
		assert.Contains(t, event.ErrorMsg, "disk full")
	})

	t.Run("long errors are truncated", func(t *testing.T) {
		svc.LogPrepare("attempt-long", 0, 0, errors.New(strings.Repeat("x", 800)))

		var event entities.AuditEvent
		err := db.Where("attempt_id = ?", "attempt-long").First(&event).Error
		require.NoError(t, err)
		assert.Len(t, event.ErrorMsg, 500)
		assert.True(t, strings.HasSuffix(event.ErrorMsg, "..."))
	})
}

func TestService_LogResumeAndReset(t *testing.T) {
	svc, _ := setupTestService(t)

	svc.LogResume("attempt-1")
	svc.LogReset("attempt-1")

	events, total, err := svc.GetEvents("attempt-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	types := []entities.AuditEventType{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []entities.AuditEventType{
		entities.AuditEventMigrationResume,
		entities.AuditEventMigrationReset,
	}, types)

	resets, _, err := svc.GetEventsByType(entities.AuditEventMigrationReset, 10, 0)
	require.NoError(t, err)
	assert.Len(t, resets, 1)
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, _ := setupTestService(t)

	require.NoError(t, svc.Log(&entities.AuditEvent{
		EventType: entities.AuditEventMigrationPrepare,
		CreatedAt: time.Now().Add(-40 * 24 * time.Hour),
	}))
	svc.LogReset("")

	deleted, err := svc.DeleteOldEvents(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
