package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/config"
	"github.com/mrlokans/notesync/internal/database"
	auditRepo "github.com/mrlokans/notesync/internal/database/audit"
	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/onboarding"
	"github.com/mrlokans/notesync/internal/tasks"
)

// MigratePrepareCommand fills the sync queue from the local database.
// Delivery is left to the server, which starts the queue once it sees
// the migration prepared.
type MigratePrepareCommand struct {
	DatabasePath string
	ChunkSize    int
	DryRun       bool

	out io.Writer
}

func NewMigratePrepareCommand() *MigratePrepareCommand {
	return &MigratePrepareCommand{out: os.Stdout}
}

func (cmd *MigratePrepareCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("migrate-prepare", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database")
	fs.IntVar(&cmd.ChunkSize, "chunk-size", migration.DefaultChunkSize, "Records per push for pages and visits")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Count what would be queued without queueing anything")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s migrate-prepare [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Queue every local collection for upload to the cloud backend.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s migrate-prepare -db ./notesync.db\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s migrate-prepare -db ./notesync.db -dry-run\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", cmd.ChunkSize)
	}

	return nil
}

func (cmd *MigratePrepareCommand) Run() error {
	if _, err := os.Stat(cmd.DatabasePath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", cmd.DatabasePath)
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	ctx := context.Background()

	if cmd.DryRun {
		return cmd.dryRun(ctx, db)
	}

	sqlDB, err := db.SQLDB()
	if err != nil {
		return err
	}
	queue, err := tasks.NewClient(sqlDB, tasks.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize task queue: %w", err)
	}
	// Queues must be registered to save tasks. Nothing is delivered here.
	queue.Register(tasks.NewPushObjectQueue(nil, nil), tasks.NewExecuteClientInstructionsQueue(nil))

	service := onboarding.NewService(onboarding.Dependencies{
		DB:      db.DB,
		Store:   db,
		Counter: db,
		Enqueuer: func(attemptID string) migration.EnqueueFunc {
			return queue.Enqueuer(attemptID)
		},
		Redelivery: queue,
		Audit:      audit.NewService(auditRepo.NewRepository(db.DB)),
	}, onboarding.Config{ChunkSize: cmd.ChunkSize})

	result, err := service.Run(ctx)
	if err != nil {
		return err
	}

	if result.Actions == 0 {
		fmt.Fprintf(cmd.out, "Migration was already prepared, nothing new queued.\n")
		return nil
	}

	fmt.Fprintf(cmd.out, "\n=== Queued ===\n")
	printResult(cmd.out, result)
	fmt.Fprintf(cmd.out, "\nStart the server to deliver the queued actions. A running server picks them up within TASK_POLL_INTERVAL.\n")
	return nil
}

// dryRun walks the collections like a real preparation, without a queue.
func (cmd *MigratePrepareCommand) dryRun(ctx context.Context, db *database.Database) error {
	discard := func(context.Context, tasks.Action) error { return nil }

	result, err := migration.NewPreparer(db, discard, migration.WithChunkSize(cmd.ChunkSize)).Prepare(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.out, "\n=== Dry run, nothing queued ===\n")
	printResult(cmd.out, result)
	return nil
}

func printResult(w io.Writer, result migration.Result) {
	for _, c := range result.Collections {
		fmt.Fprintf(w, "%-26s %7d records in %4d actions\n", c.Collection, c.Records, c.Actions)
	}
	fmt.Fprintf(w, "%-26s %7d records in %4d actions\n", "total", result.Records, result.Actions)
}
