// Package queue is a durable work queue on the shared SQLite database.
// Delivery is at-least-once: a task that fails mid-flight is retried, so a
// consumer may see the same payload more than once.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TaskProcessResponse is the task name for assistant-reply dispatch units
// of work.
const TaskProcessResponse = "dispatch.process_response"

const defaultMaxAttempts = 3

// Task is one claimed unit of work.
type Task struct {
	ID       int64
	Name     string
	Payload  []byte
	Attempts int64
}

type Queue struct {
	db          *sql.DB
	maxAttempts int64
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db, maxAttempts: defaultMaxAttempts}
}

// Enqueue appends a task with a JSON-encoded payload.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
        INSERT INTO dispatch_queue (task_name, payload, status, updated_at)
        VALUES (?, ?, 'queued', unixepoch())`, name, string(body))
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Claim transactionally moves the oldest runnable task to in_progress and
// returns it. Returns nil when nothing is runnable. Failed tasks become
// runnable again once their retry backoff has elapsed, until they run out
// of attempts.
func (q *Queue) Claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var task Task
	err = tx.QueryRowContext(ctx, `
        SELECT id, task_name, payload, attempts FROM dispatch_queue
        WHERE status = 'queued'
        ORDER BY id LIMIT 1`).Scan(&task.ID, &task.Name, &task.Payload, &task.Attempts)
	if err == sql.ErrNoRows {
		found, ferr := q.nextRetryable(ctx, tx, &task)
		if ferr != nil {
			return nil, ferr
		}
		if !found {
			return nil, nil
		}
	} else if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE dispatch_queue
        SET status = 'in_progress', attempts = attempts + 1,
            locked_at = unixepoch(), error = NULL, updated_at = unixepoch()
        WHERE id = ?`, task.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	task.Attempts++
	return &task, nil
}

func (q *Queue) nextRetryable(ctx context.Context, tx *sql.Tx, task *Task) (bool, error) {
	rows, err := tx.QueryContext(ctx, `
        SELECT id, task_name, payload, attempts, updated_at
        FROM dispatch_queue WHERE status = 'failed'
        ORDER BY id LIMIT 100`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	now := time.Now().Unix()
	for rows.Next() {
		var cand Task
		var updatedAt int64
		if err := rows.Scan(&cand.ID, &cand.Name, &cand.Payload, &cand.Attempts, &updatedAt); err != nil {
			return false, err
		}
		if cand.Attempts >= q.maxAttempts {
			continue
		}
		if updatedAt+retryBackoffSeconds(cand.Attempts) <= now {
			*task = cand
			return true, nil
		}
	}
	return false, rows.Err()
}

// retryBackoffSeconds grows linearly with the attempt count.
func retryBackoffSeconds(attempts int64) int64 {
	return 30 * attempts
}

// Done acknowledges a completed task.
func (q *Queue) Done(ctx context.Context, taskID int64) error {
	_, err := q.db.ExecContext(ctx, `
        UPDATE dispatch_queue
        SET status = 'done', updated_at = unixepoch(), error = NULL
        WHERE id = ?`, taskID)
	return err
}

// Fail marks a task failed so it can be retried after backoff.
func (q *Queue) Fail(ctx context.Context, taskID int64, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
        UPDATE dispatch_queue
        SET status = 'failed', updated_at = unixepoch(), error = ?
        WHERE id = ?`, errMsg, taskID)
	return err
}
