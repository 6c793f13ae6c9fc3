package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// Counter is a keyed counter store with expiry, shared across processes.
// Increment must be atomic in the backing store.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	ExpireAt(ctx context.Context, key string, at time.Time) error
}

// SQLiteCounter keeps counters in the shared rate_counters table. The upsert
// resets any counter whose expiry has already passed, so stale keys behave
// as if they had been deleted at their deadline.
type SQLiteCounter struct {
	db *sql.DB
}

func NewSQLiteCounter(db *sql.DB) *SQLiteCounter {
	return &SQLiteCounter{db: db}
}

func (c *SQLiteCounter) Increment(ctx context.Context, key string) (int64, error) {
	now := time.Now().Unix()
	var count int64
	err := c.db.QueryRowContext(ctx, `
        INSERT INTO rate_counters (key, count, expires_at) VALUES (?, 1, NULL)
        ON CONFLICT(key) DO UPDATE SET
            count = CASE
                WHEN rate_counters.expires_at IS NOT NULL AND rate_counters.expires_at <= ?
                THEN 1 ELSE rate_counters.count + 1 END,
            expires_at = CASE
                WHEN rate_counters.expires_at IS NOT NULL AND rate_counters.expires_at <= ?
                THEN NULL ELSE rate_counters.expires_at END
        RETURNING count`, key, now, now).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *SQLiteCounter) ExpireAt(ctx context.Context, key string, at time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE rate_counters SET expires_at = ? WHERE key = ?`, at.Unix(), key)
	return err
}
