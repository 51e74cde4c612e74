package ratelimit

import (
	"context"
	"time"
)

// Store persists counters across stateless invocations. Implementations must
// make Increment atomic: concurrent calls for the same key must never both
// observe the same count (the classic read-then-write undercount).
type Store interface {
	// Increment counts one request against key. It creates the window on the
	// first request, starts a fresh window when the stored one has elapsed,
	// and refuses the bump when the counter is already at the policy limit.
	// The returned bool reports whether the request was counted.
	Increment(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, bool, error)

	// Peek reports the current counter without mutating it. A missing or
	// expired row is reported as a zero-count entry whose window starts at
	// now.
	Peek(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, error)

	// Reset deletes the key's counter.
	Reset(ctx context.Context, key Key) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// Sweeper is implemented by stores whose expired rows are physically
// retained until overwritten and need periodic cleanup. Stores with
// native expiry (Redis TTLs) do not implement it.
type Sweeper interface {
	// SweepExpired deletes rows whose window ended before cutoff and returns
	// how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
