package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/notesync/internal/database"
)

// Client wraps backlite to provide the sync action queue.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu       sync.RWMutex
	started  bool
	stopPoll chan struct{}
}

// NewClient creates a task queue client on the application database.
// Sharing the connection pool with the local store lets tasks be saved
// inside a store transaction, see Enqueue.
func NewClient(db *sql.DB, cfg Config) (*Client, error) {
	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &stdLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	// Install schema
	if err := client.Install(); err != nil {
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	return &Client{
		client: client,
		db:     db,
		config: cfg,
	}, nil
}

// Register registers task queues with the client.
// Must be called before Start() and before the first Enqueue.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing tasks. This is non-blocking and should be called
// in a goroutine. Use Stop() for graceful shutdown.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopPoll = make(chan struct{})
	stop := c.stopPoll
	c.mu.Unlock()

	log.Printf("Task queue started with %d workers", c.config.Workers)
	c.client.Start(ctx)

	if c.config.PollInterval > 0 {
		go c.poll(ctx, c.config.PollInterval, stop)
	}
}

// poll wakes the dispatcher periodically so tasks committed by another
// process, such as the migrate-prepare command, are picked up.
func (c *Client) poll(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.client.Notify()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Notify wakes the dispatcher. Tasks saved inside a caller's transaction
// are not seen by a running dispatcher until Notify is called after the
// commit.
func (c *Client) Notify() {
	c.client.Notify()
}

// Started reports whether Start has been called.
func (c *Client) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Stop gracefully shuts down the task queue, waiting for active tasks to complete.
// Returns true if all workers finished before the context deadline.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return true
	}
	if c.stopPoll != nil {
		close(c.stopPoll)
		c.stopPoll = nil
	}
	c.mu.Unlock()

	log.Println("Stopping task queue...")
	success := c.client.Stop(ctx)
	if success {
		log.Println("Task queue stopped gracefully")
	} else {
		log.Println("Task queue stopped with timeout (some tasks may not have completed)")
	}
	return success
}

// Enqueue saves the task for an action. When ctx carries a store
// transaction the task is written inside it and only becomes visible to
// workers once that transaction commits and Notify is called.
func (c *Client) Enqueue(ctx context.Context, attemptID string, action Action) error {
	_, err := c.add(ctx, attemptID, action)
	return err
}

func (c *Client) add(ctx context.Context, attemptID string, action Action) ([]string, error) {
	task, err := action.Task(attemptID)
	if err != nil {
		return nil, err
	}

	op := c.client.Add(task).Ctx(ctx)
	if tx, ok := database.TxFromContext(ctx); ok {
		op = op.Tx(tx)
	}

	ids, err := op.Save()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", action.Type, err)
	}
	return ids, nil
}

// Enqueuer binds Enqueue to one migration attempt. Push actions are
// numbered in the order they are enqueued, which is the order they are
// delivered in.
func (c *Client) Enqueuer(attemptID string) func(ctx context.Context, action Action) error {
	seq := 0
	return func(ctx context.Context, action Action) error {
		if action.Type == ActionTypePushObject {
			seq++
			action.Seq = seq
		}
		return c.Enqueue(ctx, attemptID, action)
	}
}

// Status returns the status of a task by ID.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

// stdLogger implements backlite.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (l *stdLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
