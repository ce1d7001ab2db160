package config

const (
	// DefaultDatabasePath is the default path for the local notes database
	DefaultDatabasePath = "./notesync.db"

	// DefaultMigrationChunkSize matches migration.DefaultChunkSize
	DefaultMigrationChunkSize = 500

	// DefaultAuditRetentionDays is how long migration history is kept
	DefaultAuditRetentionDays = 90

	// DefaultMigrationRetrySchedule retries every 15 minutes
	DefaultMigrationRetrySchedule = "*/15 * * * *"
)
