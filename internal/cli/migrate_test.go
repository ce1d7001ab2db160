package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/notesync/internal/database"
	"github.com/mrlokans/notesync/internal/entities"
)

func setupTestDatabase(t *testing.T, pages int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notes.db")
	db, err := database.NewDatabase(path)
	require.NoError(t, err)
	for i := 0; i < pages; i++ {
		require.NoError(t, db.DB.Create(&entities.Page{URL: fmt.Sprintf("example.com/%d", i)}).Error)
	}
	require.NoError(t, db.Close())
	return path
}

func queuedTasks(t *testing.T, path string) int64 {
	t.Helper()

	db, err := database.NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	if !db.DB.Migrator().HasTable("backlite_tasks") {
		return 0
	}
	var n int64
	require.NoError(t, db.DB.Raw("SELECT COUNT(*) FROM backlite_tasks").Scan(&n).Error)
	return n
}

func TestMigratePrepareCommand_ParseFlags(t *testing.T) {
	cmd := NewMigratePrepareCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", "/tmp/x.db", "-chunk-size", "100", "-dry-run"}))

	assert.Equal(t, "/tmp/x.db", cmd.DatabasePath)
	assert.Equal(t, 100, cmd.ChunkSize)
	assert.True(t, cmd.DryRun)

	assert.Error(t, NewMigratePrepareCommand().ParseFlags([]string{"-chunk-size", "0"}))
}

func TestMigratePrepareCommand_MissingDatabase(t *testing.T) {
	cmd := NewMigratePrepareCommand()
	cmd.DatabasePath = filepath.Join(t.TempDir(), "missing.db")
	cmd.ChunkSize = 10

	assert.ErrorContains(t, cmd.Run(), "does not exist")
}

func TestMigratePrepareCommand_DryRun(t *testing.T) {
	path := setupTestDatabase(t, 25)

	var out bytes.Buffer
	cmd := &MigratePrepareCommand{DatabasePath: path, ChunkSize: 10, DryRun: true, out: &out}
	require.NoError(t, cmd.Run())

	assert.Contains(t, out.String(), "Dry run")
	assert.Regexp(t, `pages\s+25 records in\s+3 actions`, out.String())
	assert.Zero(t, queuedTasks(t, path))
}

func TestMigratePrepareCommand_Run(t *testing.T) {
	path := setupTestDatabase(t, 25)

	var out bytes.Buffer
	cmd := &MigratePrepareCommand{DatabasePath: path, ChunkSize: 10, out: &out}
	require.NoError(t, cmd.Run())

	// 3 page chunks, 1 empty visits chunk and one action per remaining collection
	assert.Equal(t, int64(14), queuedTasks(t, path))
	assert.Regexp(t, `total\s+25 records in\s+14 actions`, out.String())

	out.Reset()
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "already prepared")
	assert.Equal(t, int64(14), queuedTasks(t, path))

	out.Reset()
	status := &MigrateStatusCommand{DatabasePath: path, History: 5, out: &out}
	require.NoError(t, status.Run())
	assert.Contains(t, out.String(), "Prepared:   true")
	assert.Contains(t, out.String(), "Last run:   completed")
	assert.Contains(t, out.String(), "Records:    25 of 25 in 14 actions")
	assert.Contains(t, out.String(), "History:")
	assert.Contains(t, out.String(), "success  Migration prepared")
	assert.NotContains(t, out.String(), "Failed:")
}

func TestMigratePrepareCommand_RequeuesFailedActions(t *testing.T) {
	path := setupTestDatabase(t, 5)

	var out bytes.Buffer
	prepare := &MigratePrepareCommand{DatabasePath: path, ChunkSize: 10, out: &out}
	require.NoError(t, prepare.Run())
	queued := queuedTasks(t, path)

	// Retire the oldest push the way one that ran out of attempts is retired.
	db, err := database.NewDatabase(path)
	require.NoError(t, err)
	var id string
	require.NoError(t, db.DB.Raw("SELECT id FROM backlite_tasks WHERE queue = 'push_object' ORDER BY id LIMIT 1").Scan(&id).Error)
	require.NoError(t, db.DB.Exec(`
		INSERT INTO backlite_tasks_completed (id, created_at, queue, attempts, succeeded, task, error)
		SELECT id, created_at, queue, 5, 0, task, 'backend unavailable' FROM backlite_tasks WHERE id = ?`, id).Error)
	require.NoError(t, db.DB.Exec("DELETE FROM backlite_tasks WHERE id = ?", id).Error)
	require.NoError(t, db.Close())

	out.Reset()
	status := &MigrateStatusCommand{DatabasePath: path, out: &out}
	require.NoError(t, status.Run())
	assert.Contains(t, out.String(), "Failed:     1 actions ran out of attempts")

	out.Reset()
	require.NoError(t, prepare.Run())
	assert.Contains(t, out.String(), "already prepared")
	assert.Equal(t, queued, queuedTasks(t, path))

	out.Reset()
	require.NoError(t, status.Run())
	assert.NotContains(t, out.String(), "Failed:")
}

func TestMigrateStatusCommand_Pristine(t *testing.T) {
	path := setupTestDatabase(t, 0)

	var out bytes.Buffer
	cmd := &MigrateStatusCommand{DatabasePath: path, History: 5, out: &out}
	require.NoError(t, cmd.Run())

	assert.Contains(t, out.String(), "Prepared:   false")
	assert.Contains(t, out.String(), "Last run:   pristine")
	assert.NotContains(t, out.String(), "History:")
}
