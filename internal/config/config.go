package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Cloud
		Migration
		MigrationRetry
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Cloud struct {
		BackendURL string // Base URL of the sync backend, empty disables delivery
		Token      string
	}
	Migration struct {
		ChunkSize          int // Records per push for pages and visits (default: 500)
		AuditRetentionDays int
	}
	MigrationRetry struct {
		Enabled  bool
		Schedule string // Cron format: "*/15 * * * *" = every 15 minutes
	}
	Tasks struct {
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
		PollInterval    time.Duration // Picks up actions queued by the CLI
	}
)

func NewConfig() *Config {
	return newConfig(viper.New())
}

func newConfig(v *viper.Viper) *Config {
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Cloud backend defaults
	v.SetDefault("cloud_backend_url", "")
	v.SetDefault("cloud_token", "")

	// Migration defaults
	v.SetDefault("migration_chunk_size", DefaultMigrationChunkSize)
	v.SetDefault("migration_audit_retention_days", DefaultAuditRetentionDays)
	v.SetDefault("migration_retry_enabled", false)
	v.SetDefault("migration_retry_schedule", DefaultMigrationRetrySchedule)

	// Task queue defaults
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_poll_interval", "1m")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Cloud: Cloud{
			BackendURL: v.GetString("CLOUD_BACKEND_URL"),
			Token:      v.GetString("CLOUD_TOKEN"),
		},
		Migration: Migration{
			ChunkSize:          v.GetInt("MIGRATION_CHUNK_SIZE"),
			AuditRetentionDays: v.GetInt("MIGRATION_AUDIT_RETENTION_DAYS"),
		},
		MigrationRetry: MigrationRetry{
			Enabled:  v.GetBool("MIGRATION_RETRY_ENABLED"),
			Schedule: v.GetString("MIGRATION_RETRY_SCHEDULE"),
		},
		Tasks: Tasks{
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
			PollInterval:    v.GetDuration("TASK_POLL_INTERVAL"),
		},
	}
}
