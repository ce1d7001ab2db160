package entrypoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/notesync/internal/config"
	"github.com/mrlokans/notesync/internal/database"
	"github.com/mrlokans/notesync/internal/tasks"
)

func TestDeliveryStarter(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.SQLDB()
	require.NoError(t, err)
	queue, err := tasks.NewClient(sqlDB, tasks.DefaultConfig())
	require.NoError(t, err)

	t.Run("no backend disables delivery", func(t *testing.T) {
		starter := deliveryStarter(config.Cloud{}, queue)
		assert.Nil(t, starter)
	})

	t.Run("configured backend delivers through the queue", func(t *testing.T) {
		starter := deliveryStarter(config.Cloud{BackendURL: "https://sync.example.com"}, queue)
		assert.Same(t, queue, starter)
	})
}
