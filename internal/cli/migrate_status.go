package cli

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/config"
	"github.com/mrlokans/notesync/internal/database"
	auditRepo "github.com/mrlokans/notesync/internal/database/audit"
	"github.com/mrlokans/notesync/internal/entities"
	"github.com/mrlokans/notesync/internal/onboarding"
	"github.com/mrlokans/notesync/internal/tasks"
)

// MigrateStatusCommand prints the stored migration state.
type MigrateStatusCommand struct {
	DatabasePath string
	History      int

	out io.Writer
}

func NewMigrateStatusCommand() *MigrateStatusCommand {
	return &MigrateStatusCommand{out: os.Stdout}
}

func (cmd *MigrateStatusCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database")
	fs.IntVar(&cmd.History, "history", 5, "Number of history events to show")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s migrate-status [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show whether the cloud migration has been prepared.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *MigrateStatusCommand) Run() error {
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

	sqlDB, err := db.SQLDB()
	if err != nil {
		return err
	}
	queue, err := tasks.NewClient(sqlDB, tasks.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize task queue: %w", err)
	}

	service := onboarding.NewService(onboarding.Dependencies{
		DB:         db.DB,
		Store:      db,
		Redelivery: queue,
		Audit:      audit.NewService(auditRepo.NewRepository(db.DB)),
	}, onboarding.Config{})
	status, err := service.Status()
	if err != nil {
		return err
	}
	printStatus(cmd.out, status)

	if cmd.History <= 0 {
		return nil
	}
	events, _, err := service.Events("", cmd.History, 0)
	if err != nil {
		return err
	}
	printHistory(cmd.out, events)
	return nil
}

func printStatus(w io.Writer, status *onboarding.Status) {
	fmt.Fprintf(w, "Prepared:   %t\n", status.Prepared)
	if status.AttemptID != "" {
		fmt.Fprintf(w, "Attempt:    %s\n", status.AttemptID)
	}
	if status.PreparedAt != nil {
		fmt.Fprintf(w, "Since:      %s\n", status.PreparedAt.Format(time.RFC3339))
	}
	if status.FailedActions > 0 {
		fmt.Fprintf(w, "Failed:     %d actions ran out of attempts, run migrate-prepare to queue them again\n", status.FailedActions)
	}

	p := status.Progress
	if p == nil {
		return
	}
	fmt.Fprintf(w, "Last run:   %s\n", p.Status)
	if !p.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:    %s\n", p.StartedAt.Format(time.RFC3339))
	}
	if p.TotalItems > 0 || p.Processed > 0 {
		fmt.Fprintf(w, "Records:    %d of %d in %d actions\n", p.Succeeded, p.TotalItems, p.Processed)
	}
	if p.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", p.Error)
	}
}

func printHistory(w io.Writer, events []entities.AuditEvent) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(w, "\nHistory:\n")
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-7s  %s", e.CreatedAt.Format(time.RFC3339), e.Status, e.Description)
		if e.ErrorMsg != "" {
			line += ": " + e.ErrorMsg
		}
		fmt.Fprintln(w, line)
	}
}
