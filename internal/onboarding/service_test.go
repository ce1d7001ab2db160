package onboarding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/notesync/internal/audit"
	"github.com/mrlokans/notesync/internal/cloud"
	"github.com/mrlokans/notesync/internal/database"
	auditrepo "github.com/mrlokans/notesync/internal/database/audit"
	syncrepo "github.com/mrlokans/notesync/internal/database/sync"
	"github.com/mrlokans/notesync/internal/entities"
	"github.com/mrlokans/notesync/internal/migration"
	"github.com/mrlokans/notesync/internal/tasks"
)

type fakeStarter struct {
	mu       sync.Mutex
	started  bool
	notified int
	calls    chan struct{}
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{calls: make(chan struct{}, 10)}
}

func (f *fakeStarter) Start(ctx context.Context) {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.calls <- struct{}{}
}

func (f *fakeStarter) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeStarter) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified++
}

func (f *fakeStarter) Notifications() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified
}

func (f *fakeStarter) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not started")
	}
}

type testEnv struct {
	db      *database.Database
	queue   *tasks.Client
	starter *fakeStarter
	service *Service
}

// failAfter makes the enqueue callback fail once n actions have been queued.
func setupTestEnv(t *testing.T, failAfter int) *testEnv {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.SQLDB()
	require.NoError(t, err)
	queue, err := tasks.NewClient(sqlDB, tasks.DefaultConfig())
	require.NoError(t, err)
	queue.Register(tasks.NewPushObjectQueue(nil, queue), tasks.NewExecuteClientInstructionsQueue(nil))

	enqueuer := func(attemptID string) migration.EnqueueFunc {
		enqueue := queue.Enqueuer(attemptID)
		calls := 0
		return func(ctx context.Context, action tasks.Action) error {
			calls++
			if failAfter > 0 && calls > failAfter {
				return errors.New("queue full")
			}
			return enqueue(ctx, action)
		}
	}

	starter := newFakeStarter()
	service := NewService(Dependencies{
		DB:         db.DB,
		Store:      db,
		Counter:    db,
		Enqueuer:   enqueuer,
		Starter:    starter,
		Redelivery: queue,
		Audit:      audit.NewService(auditrepo.NewRepository(db.DB)),
	}, Config{ChunkSize: 2})

	return &testEnv{db: db, queue: queue, starter: starter, service: service}
}

func (e *testEnv) seed(t *testing.T, pages, bookmarks int) {
	t.Helper()
	for i := 0; i < pages; i++ {
		require.NoError(t, e.db.DB.Create(&entities.Page{URL: fmt.Sprintf("example.com/%d", i)}).Error)
	}
	for i := 0; i < bookmarks; i++ {
		require.NoError(t, e.db.DB.Create(&entities.Bookmark{URL: fmt.Sprintf("example.com/%d", i), Time: time.Now()}).Error)
	}
}

func (e *testEnv) queuedTasks(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.DB.Raw("SELECT COUNT(*) FROM backlite_tasks").Scan(&n).Error)
	return n
}

func TestRun_PreparesAndStartsDelivery(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 5, 2)

	result, err := env.service.Run(context.Background())
	require.NoError(t, err)
	env.starter.waitStarted(t)

	// pages 2+2+1, visits 1 empty page, one action for each other collection
	assert.Equal(t, 3+1+10, result.Actions)
	assert.Equal(t, 7, result.Records)
	assert.Equal(t, int64(result.Actions), env.queuedTasks(t))

	status, err := env.service.Status()
	require.NoError(t, err)
	assert.True(t, status.Prepared)
	assert.NotEmpty(t, status.AttemptID)
	assert.NotNil(t, status.PreparedAt)
	assert.True(t, status.Delivering)
	assert.True(t, status.DeliveryReady)
	assert.Zero(t, status.FailedActions)
	assert.Equal(t, entities.SyncStatusCompleted, status.Progress.Status)
	assert.Equal(t, status.AttemptID, status.Progress.AttemptID)
	assert.Equal(t, 7, status.Progress.TotalItems)
	assert.Equal(t, 14, status.Progress.Processed)
	assert.Equal(t, 7, status.Progress.Succeeded)
}

func TestRun_SecondRunDoesNotEnqueueAgain(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 1, 1)

	_, err := env.service.Run(context.Background())
	require.NoError(t, err)
	queued := env.queuedTasks(t)
	first, err := env.service.Status()
	require.NoError(t, err)

	result, err := env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Actions)
	assert.Equal(t, queued, env.queuedTasks(t))

	second, err := env.service.Status()
	require.NoError(t, err)
	assert.Equal(t, first.AttemptID, second.AttemptID)
}

func TestRun_FailureRollsBackQueuedActions(t *testing.T) {
	env := setupTestEnv(t, 2)
	env.seed(t, 5, 0)

	_, err := env.service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")

	// The two actions saved before the failure went away with the transaction
	assert.Zero(t, env.queuedTasks(t))
	assert.False(t, env.starter.Started())

	status, err := env.service.Status()
	require.NoError(t, err)
	assert.False(t, status.Prepared)
	assert.Empty(t, status.AttemptID)
	assert.Equal(t, entities.SyncStatusFailed, status.Progress.Status)
	assert.Contains(t, status.Progress.Error, "queue full")
}

func TestReset_AllowsAnotherPreparation(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 1, 0)

	_, err := env.service.Run(context.Background())
	require.NoError(t, err)
	first := env.queuedTasks(t)

	require.NoError(t, env.service.Reset())

	status, err := env.service.Status()
	require.NoError(t, err)
	assert.False(t, status.Prepared)
	assert.Equal(t, entities.SyncStatusPristine, status.Progress.Status)

	_, err = env.service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*first, env.queuedTasks(t))
	assert.Equal(t, 1, env.starter.Notifications(), "running delivery is told about the new actions")
}

// countingUploader accepts every action and counts them.
type countingUploader struct {
	mu sync.Mutex
	n  int
}

func (u *countingUploader) PushObjects(ctx context.Context, attemptID, collection string, objects []map[string]any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.n++
	return nil
}

func (u *countingUploader) ExecuteClientInstructions(ctx context.Context, attemptID string, instructions []cloud.ClientInstruction) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.n++
	return nil
}

func (u *countingUploader) Delivered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.n
}

func TestRun_DeliversAgainAfterReset(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.SQLDB()
	require.NoError(t, err)

	// Without polling only an explicit wake-up delivers actions committed
	// after the dispatcher went idle.
	cfg := tasks.DefaultConfig()
	cfg.PollInterval = 0
	queue, err := tasks.NewClient(sqlDB, cfg)
	require.NoError(t, err)
	uploader := &countingUploader{}
	queue.Register(tasks.NewPushObjectQueue(uploader, queue), tasks.NewExecuteClientInstructionsQueue(uploader))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		queue.Stop(ctx)
	})

	service := NewService(Dependencies{
		DB:         db.DB,
		Store:      db,
		Counter:    db,
		Enqueuer:   func(attemptID string) migration.EnqueueFunc { return queue.Enqueuer(attemptID) },
		Starter:    queue,
		Redelivery: queue,
	}, Config{ChunkSize: 2})

	require.NoError(t, db.DB.Create(&entities.Page{URL: "example.com"}).Error)

	first, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return uploader.Delivered() == first.Actions
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, service.Reset())

	second, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Positive(t, second.Actions)
	require.Eventually(t, func() bool {
		return uploader.Delivered() == first.Actions+second.Actions
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRun_WithoutDeliveryOnlyPrepares(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 1, 0)
	service := NewService(Dependencies{
		DB:       env.db.DB,
		Store:    env.db,
		Enqueuer: func(attemptID string) migration.EnqueueFunc { return env.queue.Enqueuer(attemptID) },
	}, Config{ChunkSize: 2})

	result, err := service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(result.Actions), env.queuedTasks(t))

	status, err := service.Status()
	require.NoError(t, err)
	assert.True(t, status.Prepared)
	assert.False(t, status.Delivering)
	assert.False(t, status.DeliveryReady)
}

type fakeRedelivery struct {
	failed  int
	retried int
}

func (f *fakeRedelivery) FailedPushes(ctx context.Context) (int, error) {
	return f.failed, nil
}

func (f *fakeRedelivery) RetryFailed(ctx context.Context) (int, error) {
	f.retried++
	n := f.failed
	f.failed = 0
	return n, nil
}

func TestRun_RequeuesFailedActions(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 1, 0)
	redelivery := &fakeRedelivery{}
	service := NewService(Dependencies{
		DB:         env.db.DB,
		Store:      env.db,
		Enqueuer:   func(attemptID string) migration.EnqueueFunc { return env.queue.Enqueuer(attemptID) },
		Starter:    env.starter,
		Redelivery: redelivery,
	}, Config{ChunkSize: 2})

	_, err := service.Run(context.Background())
	require.NoError(t, err)
	env.starter.waitStarted(t)
	assert.Zero(t, redelivery.retried, "a fresh preparation has nothing to requeue")

	redelivery.failed = 2
	status, err := service.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, status.FailedActions)

	queued := env.queuedTasks(t)
	_, err = service.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, redelivery.retried)
	assert.Equal(t, queued, env.queuedTasks(t), "preparation is not repeated")

	status, err = service.Status()
	require.NoError(t, err)
	assert.Zero(t, status.FailedActions)
}

func TestStatus_Pristine(t *testing.T) {
	env := setupTestEnv(t, 0)

	status, err := env.service.Status()
	require.NoError(t, err)
	assert.False(t, status.Prepared)
	assert.False(t, status.Delivering)
	assert.Nil(t, status.PreparedAt)
	assert.Equal(t, entities.SyncStatusPristine, status.Progress.Status)
}

func TestStatus_ReportsInterruptedPreparation(t *testing.T) {
	env := setupTestEnv(t, 0)
	progress := syncrepo.NewRepository(env.db.DB)
	require.NoError(t, progress.StartSync("crashed", 10))

	status, err := env.service.Status()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRunning, status.Progress.Status)

	require.NoError(t, env.db.DB.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", entities.SyncTypeCloudMigration).
		Update("updated_at", time.Now().Add(-time.Hour)).Error)

	status, err = env.service.Status()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, status.Progress.Status)
	assert.Equal(t, "sync was interrupted", status.Progress.Error)
}

// blockingStore holds the transaction open until released.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Transaction(ctx context.Context, tables []string, fn func(ctx context.Context, r database.Reader) error) error {
	close(s.entered)
	<-s.release
	return errors.New("released")
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	env := setupTestEnv(t, 0)
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	service := NewService(Dependencies{
		DB:       env.db.DB,
		Store:    store,
		Enqueuer: func(string) migration.EnqueueFunc { return func(context.Context, tasks.Action) error { return nil } },
		Starter:  env.starter,
	}, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := service.Run(context.Background())
		done <- err
	}()
	<-store.entered

	assert.True(t, service.Running())
	_, err := service.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, service.Reset(), ErrAlreadyRunning)

	status, err := service.Status()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRunning, status.Progress.Status)
	assert.NotEmpty(t, status.Progress.AttemptID)

	close(store.release)
	assert.ErrorContains(t, <-done, "released")
	assert.False(t, service.Running())
}

func TestLiveProgress(t *testing.T) {
	live := &liveProgress{attemptID: "a-1", total: 10}
	live.OnBatch(entities.CollectionPages, 0, 4)
	live.OnBatch(entities.CollectionPages, 4, 4)

	p := &entities.SyncProgress{Status: entities.SyncStatusFailed, Error: "old"}
	live.apply(p)

	assert.Equal(t, entities.SyncStatusRunning, p.Status)
	assert.Equal(t, "a-1", p.AttemptID)
	assert.Equal(t, 2, p.Processed)
	assert.Equal(t, 8, p.Succeeded)
	assert.Equal(t, "pages@4", p.CurrentItem)
	assert.Empty(t, p.Error)
}

func TestService_RecordsHistory(t *testing.T) {
	env := setupTestEnv(t, 0)
	env.seed(t, 1, 0)

	_, err := env.service.Run(context.Background())
	require.NoError(t, err)
	env.starter.waitStarted(t)
	status, err := env.service.Status()
	require.NoError(t, err)

	require.NoError(t, env.service.Reset())

	events, total, err := env.service.Events("", 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)

	var types []entities.AuditEventType
	for _, e := range events {
		assert.Equal(t, status.AttemptID, e.AttemptID)
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []entities.AuditEventType{
		entities.AuditEventMigrationPrepare,
		entities.AuditEventMigrationReset,
	}, types)

	resets, total, err := env.service.Events(entities.AuditEventMigrationReset, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, resets, 1)
}

func TestService_RecordsFailedAttempt(t *testing.T) {
	env := setupTestEnv(t, 1)
	env.seed(t, 5, 0)

	_, err := env.service.Run(context.Background())
	require.Error(t, err)

	events, _, err := env.service.Events("", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entities.AuditStatusFailed, events[0].Status)
	assert.Contains(t, events[0].ErrorMsg, "queue full")
}
