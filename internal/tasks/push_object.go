package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/notesync/internal/cloud"
)

const pushObjectQueue = "push_object"

// Retry timing of pushes. Tests shorten them.
var (
	// pushBackoff is the wait after a failed upload.
	pushBackoff = 30 * time.Second

	// pushWaitDelay is how long a push waits for an earlier one of the same
	// attempt. A successful push releases its followers right away.
	pushWaitDelay = 30 * time.Second

	// pushParkDelay is how long a push waits behind one that ran out of
	// attempts. RetryFailed releases parked pushes.
	pushParkDelay = 10 * time.Minute
)

// PushObjectTask uploads one batch of records of a collection.
// Objects holds the JSON-encoded records.
type PushObjectTask struct {
	AttemptID  string          `json:"attempt_id"`
	Seq        int             `json:"seq"`
	Collection string          `json:"collection"`
	Count      int             `json:"count"`
	Objects    json.RawMessage `json:"objects"`
}

// Config returns the queue configuration for push tasks. Pushes that run
// out of attempts are kept with their payload until RetryFailed.
func (t PushObjectTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        pushObjectQueue,
		MaxAttempts: 5,
		Backoff:     pushBackoff,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			OnlyFailed: true,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// Records decodes the batch carried by the task.
func (t PushObjectTask) Records() ([]map[string]any, error) {
	objects := []map[string]any{}
	if len(t.Objects) == 0 {
		return objects, nil
	}
	if err := json.Unmarshal(t.Objects, &objects); err != nil {
		return nil, fmt.Errorf("decode %s objects: %w", t.Collection, err)
	}
	return objects, nil
}

// PushOrder keeps the pushes of one attempt in enqueue order.
type PushOrder interface {
	// Blocker reports whether an earlier push of the attempt is still
	// queued or has run out of attempts.
	Blocker(ctx context.Context, attemptID string, seq int) (BlockedBy, error)
	// Defer queues the task again to run after the delay.
	Defer(ctx context.Context, task PushObjectTask, after time.Duration) error
	// Release lets waiting pushes of the attempt run now.
	Release(ctx context.Context, attemptID string) error
}

// BlockedBy says why a push cannot run yet.
type BlockedBy int

const (
	NotBlocked BlockedBy = iota
	BlockedByPending
	BlockedByFailed
)

// PushObjectProcessor creates a processor function for PushObjectTask.
// With a nil order pushes are delivered as the dispatcher hands them out.
func PushObjectProcessor(uploader cloud.Uploader, order PushOrder) backlite.QueueProcessor[PushObjectTask] {
	return func(ctx context.Context, task PushObjectTask) error {
		if uploader == nil {
			return fmt.Errorf("cloud uploader not configured")
		}

		if order != nil && task.Seq > 0 {
			blocked, err := order.Blocker(ctx, task.AttemptID, task.Seq)
			if err != nil {
				return fmt.Errorf("check push order: %w", err)
			}
			// Waiting is not an attempt: the task is queued again and this
			// run ends successfully.
			switch blocked {
			case BlockedByPending:
				return order.Defer(ctx, task, pushWaitDelay)
			case BlockedByFailed:
				log.Printf("[TASK] Push %d of attempt %s parked behind a failed push", task.Seq, task.AttemptID)
				return order.Defer(ctx, task, pushParkDelay)
			}
		}

		objects, err := task.Records()
		if err != nil {
			return err
		}

		if err := uploader.PushObjects(ctx, task.AttemptID, task.Collection, objects); err != nil {
			return fmt.Errorf("push %d %s objects: %w", len(objects), task.Collection, err)
		}

		log.Printf("[TASK] Pushed %d %s objects (attempt %s)", len(objects), task.Collection, task.AttemptID)

		if order != nil && task.Seq > 0 {
			if err := order.Release(ctx, task.AttemptID); err != nil {
				log.Printf("[TASK ERROR] Failed to release pushes of attempt %s: %v", task.AttemptID, err)
			}
		}
		return nil
	}
}

// NewPushObjectQueue creates a backlite queue for push tasks.
func NewPushObjectQueue(uploader cloud.Uploader, order PushOrder) backlite.Queue {
	return backlite.NewQueue(PushObjectProcessor(uploader, order))
}
