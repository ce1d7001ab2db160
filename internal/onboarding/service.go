// Package onboarding drives the move of a local installation to the cloud.
//
// Run prepares the sync queue once (see the migration package), remembers
// that it did so in the settings collection and then starts delivery.
// A retry after a successful preparation only restarts delivery and
// requeues actions that ran out of attempts, so queued actions are never
// enqueued twice.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/database/settings"
	syncrepo "github.com/mrlokans/notesync/internal/database/sync"
	"github.com/mrlokans/notesync/internal/entities"
	"github.com/mrlokans/notesync/internal/migration"
)

var ErrAlreadyRunning = errors.New("cloud migration is already running")

// Starter begins delivering queued actions. Calling Start on a running
// starter must be a no-op. Notify tells a running starter about actions
// committed since it last looked.
type Starter interface {
	Start(ctx context.Context)
	Started() bool
	Notify()
}

// Redelivery exposes actions that ran out of delivery attempts.
type Redelivery interface {
	FailedPushes(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) (int, error)
}

// Counter reports how many records a collection holds.
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
}

// EnqueuerFactory returns the enqueue callback for one attempt.
type EnqueuerFactory func(attemptID string) migration.EnqueueFunc

type Config struct {
	ChunkSize int
	Plan      migration.Plan
}

type Dependencies struct {
	DB         *gorm.DB
	Store      migration.Store
	Counter    Counter
	Enqueuer   EnqueuerFactory
	Starter    Starter        // nil when delivery is not configured
	Redelivery Redelivery     // optional
	Audit      *audit.Service // optional
}

// Status is what the API reports about the migration.
type Status struct {
	Prepared      bool                   `json:"prepared"`
	PreparedAt    *time.Time             `json:"prepared_at,omitempty"`
	AttemptID     string                 `json:"attempt_id,omitempty"`
	Delivering    bool                   `json:"delivering"`
	DeliveryReady bool                   `json:"delivery_configured"`
	// FailedActions counts queued actions that ran out of delivery
	// attempts. The next Run queues them again.
	FailedActions int                    `json:"failed_actions"`
	Progress      *entities.SyncProgress `json:"progress"`
}

// Service coordinates preparation, bookkeeping and delivery.
type Service struct {
	settings *settings.Repository
	progress *syncrepo.Repository
	store    migration.Store
	counter  Counter
	enqueuer   EnqueuerFactory
	starter    Starter
	redelivery Redelivery
	audit      *audit.Service
	config     Config

	mu      sync.Mutex
	running bool
	live    *liveProgress
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = migration.DefaultChunkSize
	}
	if cfg.Plan == nil {
		cfg.Plan = migration.DefaultPlan
	}
	return &Service{
		settings: settings.NewRepository(deps.DB),
		progress: syncrepo.NewRepository(deps.DB),
		store:    deps.Store,
		counter:  deps.Counter,
		enqueuer: deps.Enqueuer,
		starter:    deps.Starter,
		redelivery: deps.Redelivery,
		audit:      deps.Audit,
		config:     cfg,
	}
}

// Run prepares the migration if that has not happened yet and starts
// delivery. The returned Result is empty when preparation was skipped.
func (s *Service) Run(ctx context.Context) (migration.Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return migration.Result{}, ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.live = nil
		s.mu.Unlock()
	}()

	prepared, err := s.settings.GetBool(entities.SettingKeyCloudMigrationPrepared)
	if err != nil {
		return migration.Result{}, fmt.Errorf("read migration state: %w", err)
	}

	var result migration.Result
	if prepared {
		log.Printf("[MIGRATION] Already prepared, skipping preparation")
		if s.audit != nil && s.starter != nil && !s.starter.Started() {
			s.audit.LogResume(s.preparedAttempt())
		}
		s.requeueFailed(ctx)
	} else {
		result, err = s.prepare(ctx)
		if err != nil {
			return migration.Result{}, err
		}
	}

	s.startDelivery(ctx)
	return result, nil
}

func (s *Service) prepare(ctx context.Context) (migration.Result, error) {
	attemptID := uuid.NewString()
	total := s.countRecords(ctx)

	// No writes to the store are allowed while the preparation transaction
	// holds the write lock, so progress is only persisted around it.
	if err := s.progress.StartSync(attemptID, total); err != nil {
		return migration.Result{}, fmt.Errorf("record migration start: %w", err)
	}

	live := &liveProgress{attemptID: attemptID, total: total, startedAt: time.Now()}
	s.mu.Lock()
	s.live = live
	s.mu.Unlock()

	log.Printf("[MIGRATION] Preparing attempt %s (%d records)", attemptID, total)

	preparer := migration.NewPreparer(s.store, s.enqueuer(attemptID),
		migration.WithPlan(s.config.Plan),
		migration.WithChunkSize(s.config.ChunkSize),
		migration.WithObserver(live),
	)
	result, err := preparer.Prepare(ctx)
	if err != nil {
		log.Printf("[MIGRATION] Attempt %s failed: %v", attemptID, err)
		if perr := s.progress.CompleteSync(false, err.Error()); perr != nil {
			log.Printf("[MIGRATION] Failed to record failure: %v", perr)
		}
		if s.audit != nil {
			s.audit.LogPrepare(attemptID, 0, 0, err)
		}
		return migration.Result{}, fmt.Errorf("prepare migration: %w", err)
	}

	// The queued actions are committed at this point. Losing the flag
	// below would make the next run enqueue everything a second time.
	now := time.Now().UTC()
	err = s.settings.SetSettings(map[string]string{
		entities.SettingKeyCloudMigrationPrepared:   "true",
		entities.SettingKeyCloudMigrationPreparedAt: now.Format(time.RFC3339),
		entities.SettingKeyCloudMigrationAttempt:    attemptID,
	})
	if err != nil {
		return migration.Result{}, fmt.Errorf("mark migration prepared: %w", err)
	}
	if s.audit != nil {
		s.audit.LogPrepare(attemptID, result.Records, result.Actions, nil)
	}

	if err := s.progress.UpdateProgress(result.Actions, result.Records, ""); err != nil {
		log.Printf("[MIGRATION] Failed to record progress: %v", err)
	}
	if err := s.progress.CompleteSync(true, ""); err != nil {
		log.Printf("[MIGRATION] Failed to record completion: %v", err)
	}

	log.Printf("[MIGRATION] Attempt %s prepared: %d records in %d actions", attemptID, result.Records, result.Actions)
	return result, nil
}

func (s *Service) countRecords(ctx context.Context) int {
	if s.counter == nil {
		return 0
	}
	total := 0
	for _, table := range s.config.Plan.Collections() {
		n, err := s.counter.Count(ctx, table)
		if err != nil {
			log.Printf("[MIGRATION] Failed to count %s: %v", table, err)
			continue
		}
		total += int(n)
	}
	return total
}

func (s *Service) requeueFailed(ctx context.Context) {
	if s.redelivery == nil {
		return
	}
	n, err := s.redelivery.RetryFailed(ctx)
	if err != nil {
		log.Printf("[MIGRATION] Failed to requeue failed actions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[MIGRATION] Requeued %d actions that ran out of attempts", n)
	}
}

func (s *Service) startDelivery(ctx context.Context) {
	if s.starter == nil {
		log.Printf("[MIGRATION] No delivery in this process, actions stay queued")
		return
	}
	if s.starter.Started() {
		// Actions committed inside the preparation transaction are not
		// picked up until the running dispatcher is told about them.
		s.starter.Notify()
		return
	}
	log.Printf("[MIGRATION] Starting delivery of queued actions")
	// Delivery outlives the request that triggered it.
	go s.starter.Start(context.WithoutCancel(ctx))
}

// Running reports whether Run is in progress.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the stored migration state, overlaid with live counters
// while a preparation is running.
func (s *Service) Status() (*Status, error) {
	progress, err := s.progress.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("read migration progress: %w", err)
	}

	s.mu.Lock()
	live := s.live
	s.mu.Unlock()

	if live != nil {
		live.apply(progress)
	} else if progress.Status == entities.SyncStatusRunning {
		// Left behind by a process that died while preparing, unless
		// another process is still at it.
		if running, err := s.progress.IsSyncRunning(); err == nil && !running {
			if p, err := s.progress.Snapshot(); err == nil {
				progress = p
			}
		}
	}

	prepared, err := s.settings.GetBool(entities.SettingKeyCloudMigrationPrepared)
	if err != nil {
		return nil, fmt.Errorf("read migration state: %w", err)
	}

	status := &Status{
		Prepared: prepared,
		Progress: progress,
	}
	if s.starter != nil {
		status.DeliveryReady = true
		status.Delivering = s.starter.Started()
	}
	if s.redelivery != nil {
		n, err := s.redelivery.FailedPushes(context.Background())
		if err != nil {
			log.Printf("[MIGRATION] Failed to count failed actions: %v", err)
		}
		status.FailedActions = n
	}
	if !prepared {
		return status, nil
	}

	status.AttemptID = s.preparedAttempt()
	if setting, err := s.settings.GetSetting(entities.SettingKeyCloudMigrationPreparedAt); err == nil {
		if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
			status.PreparedAt = &t
		}
	}
	return status, nil
}

// Reset forgets a previous preparation so the next Run enqueues again.
// Actions already queued are left alone.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	attemptID := s.preparedAttempt()
	err := s.settings.DeleteSettings(
		entities.SettingKeyCloudMigrationPrepared,
		entities.SettingKeyCloudMigrationPreparedAt,
		entities.SettingKeyCloudMigrationAttempt,
	)
	if err != nil {
		return fmt.Errorf("reset migration state: %w", err)
	}
	if err := s.progress.Reset(); err != nil {
		return fmt.Errorf("reset migration progress: %w", err)
	}
	if s.audit != nil {
		s.audit.LogReset(attemptID)
	}
	log.Printf("[MIGRATION] State reset")
	return nil
}

// Events returns the migration history, most recent first. An empty
// eventType returns every event.
func (s *Service) Events(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	if s.audit == nil {
		return []entities.AuditEvent{}, 0, nil
	}
	if eventType != "" {
		return s.audit.GetEventsByType(eventType, limit, offset)
	}
	return s.audit.GetEvents("", limit, offset)
}

// preparedAttempt returns the id of the prepared attempt, if any.
func (s *Service) preparedAttempt() string {
	setting, err := s.settings.GetSetting(entities.SettingKeyCloudMigrationAttempt)
	if err != nil {
		return ""
	}
	return setting.Value
}

// liveProgress is updated from inside the preparation transaction and read
// by Status.
type liveProgress struct {
	attemptID   string
	total       int
	startedAt   time.Time
	actions     int
	records     int
	currentItem string
	mu          sync.Mutex
}

func (l *liveProgress) OnBatch(collection string, offset, records int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions++
	l.records += records
	l.currentItem = fmt.Sprintf("%s@%d", collection, offset)
}

func (l *liveProgress) apply(p *entities.SyncProgress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.Status = entities.SyncStatusRunning
	p.AttemptID = l.attemptID
	p.TotalItems = l.total
	p.Processed = l.actions
	p.Succeeded = l.records
	p.CurrentItem = l.currentItem
	p.StartedAt = l.startedAt
	p.UpdatedAt = time.Now()
	p.CompletedAt = nil
	p.Error = ""
}
