package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dj-pearson/gym-unity-edge/internal/log"
)

// ErrUnknownLimitType marks requests naming a limit type with no configured
// policy. Callers treat it as bad input rather than a store failure.
var ErrUnknownLimitType = errors.New("unknown limit type")

// Limiter bounds request volume per (limit-type, identifier, endpoint) triple
// inside a fixed time window, against a persisted counter store.
type Limiter struct {
	store    Store
	policies map[string]Policy
	logger   *slog.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// New creates a Limiter. A nil policies map uses DefaultPolicies.
func New(store Store, policies map[string]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{
		store:    store,
		policies: policies,
		logger:   log.WithComponent("ratelimit"),
	}
}

// Do dispatches one rate-limit request to the matching action.
func (l *Limiter) Do(ctx context.Context, req Request) (Decision, error) {
	key := Key{LimitType: req.LimitType, Identifier: req.Identifier, Endpoint: req.Endpoint}
	switch req.Action {
	case ActionCheck, ActionStatus:
		return l.Check(ctx, key)
	case ActionIncrement, "":
		return l.Increment(ctx, key)
	case ActionReset:
		if err := l.Reset(ctx, key); err != nil {
			return Decision{}, err
		}
		policy, err := l.policyFor(key.LimitType)
		if err != nil {
			return Decision{}, err
		}
		now := l.now()
		return Decision{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetAt:   now.Add(policy.Window),
		}, nil
	}
	return Decision{}, fmt.Errorf("unknown rate limit action %q", req.Action)
}

// Check reports the current state of a key without counting a request.
func (l *Limiter) Check(ctx context.Context, key Key) (Decision, error) {
	policy, err := l.policyFor(key.LimitType)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()

	entry, err := l.store.Peek(ctx, key, policy, now)
	if err != nil {
		return Decision{}, err
	}
	return l.decide(policy, entry, now, entry.Count < policy.MaxRequests), nil
}

// Increment counts one request against a key and decides allow/deny. This is
// the gating call; denial carries RetryAfter.
func (l *Limiter) Increment(ctx context.Context, key Key) (Decision, error) {
	policy, err := l.policyFor(key.LimitType)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()

	entry, counted, err := l.store.Increment(ctx, key, policy, now)
	if err != nil {
		return Decision{}, err
	}

	d := l.decide(policy, entry, now, counted)
	if !d.Allowed {
		// Routine traffic shaping, not an error.
		l.logger.Info("rate limit exceeded",
			"limit_type", key.LimitType,
			"identifier", key.Identifier,
			"endpoint", key.Endpoint,
			"retry_after", d.RetryAfter,
		)
	}
	return d, nil
}

// Reset force-deletes a key's counter.
func (l *Limiter) Reset(ctx context.Context, key Key) error {
	if _, err := l.policyFor(key.LimitType); err != nil {
		return err
	}
	return l.store.Reset(ctx, key)
}

// Ping reports whether the counter store is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func (l *Limiter) policyFor(limitType string) (Policy, error) {
	policy, ok := l.policies[limitType]
	if !ok {
		return Policy{}, fmt.Errorf("%w %q", ErrUnknownLimitType, limitType)
	}
	return policy, nil
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Limiter) decide(policy Policy, entry Entry, now time.Time, allowed bool) Decision {
	remaining := policy.MaxRequests - entry.Count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := entry.WindowStart.Add(policy.Window)

	d := Decision{
		Allowed:   allowed,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
		Count:     entry.Count,
	}
	if !allowed {
		secs := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		d.RetryAfter = secs
	}
	return d
}
