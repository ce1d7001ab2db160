package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

const (
	attemptOf = `json_extract(CAST(task AS TEXT), '$.attempt_id')`
	seqOf     = `json_extract(CAST(task AS TEXT), '$.seq')`
)

// Blocker reports what keeps push seq of an attempt from running: an
// earlier push still queued, or an earlier push that ran out of attempts.
func (c *Client) Blocker(ctx context.Context, attemptID string, seq int) (BlockedBy, error) {
	var pending bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM backlite_tasks
			WHERE queue = ? AND `+attemptOf+` = ? AND `+seqOf+` < ?
		)`, pushObjectQueue, attemptID, seq).Scan(&pending)
	if err != nil {
		return NotBlocked, fmt.Errorf("query queued pushes: %w", err)
	}
	if pending {
		return BlockedByPending, nil
	}

	var failed bool
	err = c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM backlite_tasks_completed
			WHERE queue = ? AND error IS NOT NULL AND task IS NOT NULL
				AND `+attemptOf+` = ? AND `+seqOf+` < ?
		)`, pushObjectQueue, attemptID, seq).Scan(&failed)
	if err != nil {
		return NotBlocked, fmt.Errorf("query failed pushes: %w", err)
	}
	if failed {
		return BlockedByFailed, nil
	}
	return NotBlocked, nil
}

// Defer queues the push again to run after the delay.
func (c *Client) Defer(ctx context.Context, task PushObjectTask, after time.Duration) error {
	if _, err := c.client.Add(task).Ctx(ctx).Wait(after).Save(); err != nil {
		return fmt.Errorf("defer push %d: %w", task.Seq, err)
	}
	return nil
}

// Release lets the waiting pushes of an attempt run now.
func (c *Client) Release(ctx context.Context, attemptID string) error {
	if err := release(ctx, c.db, attemptID); err != nil {
		return err
	}
	c.client.Notify()
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// release clears the waits of queued pushes, of every attempt when
// attemptID is empty.
func release(ctx context.Context, db execer, attemptID string) error {
	query := `
		UPDATE backlite_tasks SET wait_until = NULL
		WHERE queue = ? AND claimed_at IS NULL AND wait_until IS NOT NULL`
	args := []any{pushObjectQueue}
	if attemptID != "" {
		query += ` AND ` + attemptOf + ` = ?`
		args = append(args, attemptID)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release pushes: %w", err)
	}
	return nil
}

// FailedPushes counts pushes that ran out of attempts and wait for RetryFailed.
func (c *Client) FailedPushes(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backlite_tasks_completed
		WHERE queue = ? AND error IS NOT NULL AND task IS NOT NULL`,
		pushObjectQueue).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed pushes: %w", err)
	}
	return count, nil
}

// RetryFailed queues every push that ran out of attempts again, with its
// original position, and returns how many were queued.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retry: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, task FROM backlite_tasks_completed
		WHERE queue = ? AND error IS NOT NULL AND task IS NOT NULL
		ORDER BY id`, pushObjectQueue)
	if err != nil {
		return 0, fmt.Errorf("query failed pushes: %w", err)
	}

	type failedPush struct {
		id   string
		task PushObjectTask
	}
	var failed []failedPush
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan failed push: %w", err)
		}
		var task PushObjectTask
		if err := json.Unmarshal(raw, &task); err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode failed push %s: %w", id, err)
		}
		failed = append(failed, failedPush{id: id, task: task})
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	for _, f := range failed {
		if _, err := c.client.Add(f.task).Ctx(ctx).Tx(tx).Save(); err != nil {
			return 0, fmt.Errorf("requeue push %s: %w", f.id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM backlite_tasks_completed WHERE id = ?`, f.id); err != nil {
			return 0, fmt.Errorf("remove failed push %s: %w", f.id, err)
		}
	}

	if err := release(ctx, tx, ""); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retry: %w", err)
	}

	c.client.Notify()
	log.Printf("[TASK] Requeued %d failed pushes", len(failed))
	return len(failed), nil
}
