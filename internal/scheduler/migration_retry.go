package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/onboarding"
)

// DefaultRetrySchedule runs every 15 minutes.
const DefaultRetrySchedule = "*/15 * * * *"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Migrator is the part of onboarding.Service the scheduler drives.
type Migrator interface {
	Run(ctx context.Context) (migration.Result, error)
	Status() (*onboarding.Status, error)
}

type RetryConfig struct {
	Enabled  bool
	Schedule string // Cron format: "*/15 * * * *" = every 15 minutes
}

// MigrationRetryScheduler retries the cloud migration until it has been
// prepared and delivery is running.
type MigrationRetryScheduler struct {
	migrator Migrator
	config   RetryConfig

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewMigrationRetryScheduler creates a new scheduler instance
func NewMigrationRetryScheduler(migrator Migrator, cfg RetryConfig) *MigrationRetryScheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetrySchedule
	}
	return &MigrationRetryScheduler{
		migrator: migrator,
		config:   cfg,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start begins the scheduler if retries are enabled
func (s *MigrationRetryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.Enabled {
		log.Printf("[MIGRATION] Retry scheduler: disabled")
		return nil
	}

	if err := ValidateCronSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runRetry()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule migration retry: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := GetNextRunTime(s.config.Schedule)
	log.Printf("[MIGRATION] Retry scheduler: started with schedule '%s'. Next run: %v", s.config.Schedule, nextRun)

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler
func (s *MigrationRetryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.cron.Remove(s.entryID)
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("[MIGRATION] Retry scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *MigrationRetryScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next retry will occur
func (s *MigrationRetryScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runRetry runs the migration unless there is nothing left for it to do:
// preparation is done, delivery runs or cannot run, and no action ran out
// of attempts.
func (s *MigrationRetryScheduler) runRetry() {
	status, err := s.migrator.Status()
	if err != nil {
		log.Printf("[MIGRATION] Retry: failed to read status: %v", err)
		return
	}
	if settled(status) {
		return
	}

	result, err := s.migrator.Run(context.Background())
	if err != nil {
		log.Printf("[MIGRATION] Retry: %v", err)
		return
	}
	if result.Actions > 0 {
		log.Printf("[MIGRATION] Retry: prepared %d records in %d actions", result.Records, result.Actions)
	}
}

func settled(status *onboarding.Status) bool {
	if !status.Prepared || status.FailedActions > 0 {
		return false
	}
	return status.Delivering || !status.DeliveryReady
}

// ValidateCronSchedule validates a cron schedule string
func ValidateCronSchedule(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// GetNextRunTime returns the next run time for a cron schedule
func GetNextRunTime(schedule string) (*time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now())
	return &next, nil
}
