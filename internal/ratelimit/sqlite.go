package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists counters in the shared SQLite database.
//
// Increment is a single conditional UPDATE...RETURNING, so concurrent
// requests for the same key serialize inside the database instead of racing
// through a read-then-write sequence. window_start is stored as unix
// milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database. The rate_limits table must already
// be bootstrapped (storage.OpenSQLite does this).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Increment(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, bool, error) {
	nowMs := now.UnixMilli()
	expiredBefore := now.Add(-policy.Window).UnixMilli()
	nowS := now.UTC().Format(time.RFC3339Nano)

	// Two passes cover the insert race: a concurrent first request can win
	// the INSERT between our UPDATE and INSERT attempts.
	for attempt := 0; attempt < 2; attempt++ {
		row := s.db.QueryRowContext(ctx, `
UPDATE rate_limits
SET count = CASE WHEN window_start <= ? THEN 1 ELSE count + 1 END,
    window_start = CASE WHEN window_start <= ? THEN ? ELSE window_start END,
    updated_at = ?
WHERE key = ? AND (window_start <= ? OR count < ?)
RETURNING count, window_start;
`, expiredBefore, expiredBefore, nowMs, nowS, key.String(), expiredBefore, policy.MaxRequests)

		var count int
		var windowStartMs int64
		err := row.Scan(&count, &windowStartMs)
		if err == nil {
			return Entry{
				Key:         key,
				Count:       count,
				WindowStart: time.UnixMilli(windowStartMs),
				UpdatedAt:   now,
			}, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, fmt.Errorf("increment rate limit: %w", err)
		}

		// No row matched: either the key is unseen or it is at limit.
		res, err := s.db.ExecContext(ctx, `
INSERT INTO rate_limits(key, count, window_start, limit_type, identifier, endpoint, updated_at)
VALUES(?, 1, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING;
`, key.String(), nowMs, key.LimitType, key.Identifier, key.Endpoint, nowS)
		if err != nil {
			return Entry{}, false, fmt.Errorf("create rate limit row: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return Entry{}, false, fmt.Errorf("create rate limit row: %w", err)
		}
		if inserted == 1 {
			return Entry{Key: key, Count: 1, WindowStart: now, UpdatedAt: now}, true, nil
		}
	}

	// The row exists, is inside its window, and is at limit.
	entry, err := s.Peek(ctx, key, policy, now)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, false, nil
}

func (s *SQLiteStore) Peek(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count, window_start FROM rate_limits WHERE key = ?;`, key.String())

	var count int
	var windowStartMs int64
	err := row.Scan(&count, &windowStartMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{Key: key, Count: 0, WindowStart: now}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read rate limit: %w", err)
	}

	windowStart := time.UnixMilli(windowStartMs)
	if !windowStart.Add(policy.Window).After(now) {
		// Logically expired; the row is superseded on the next increment.
		return Entry{Key: key, Count: 0, WindowStart: now}, nil
	}
	return Entry{Key: key, Count: count, WindowStart: windowStart}, nil
}

func (s *SQLiteStore) Reset(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE key = ?;`, key.String()); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SweepExpired deletes rows whose window started before cutoff. Callers pick
// a cutoff comfortably older than the longest policy window so live windows
// are never touched.
func (s *SQLiteStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE window_start <= ?;`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep rate limits: %w", err)
	}
	return res.RowsAffected()
}
