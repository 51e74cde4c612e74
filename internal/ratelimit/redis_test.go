package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return New(store, testPolicies()), mr
}

func TestRedisIncrementLifecycle(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t)
	key := Key{LimitType: "api", Identifier: "member-1", Endpoint: "/v1/leads"}

	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		d, err := l.Increment(ctx, key)
		if err != nil {
			t.Fatalf("increment %d: %v", i+1, err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("increment %d = %+v, want remaining %d", i+1, d, wantRemaining)
		}
	}

	d, err := l.Increment(ctx, key)
	if err != nil {
		t.Fatalf("denied increment: %v", err)
	}
	if d.Allowed {
		t.Fatal("increment at limit allowed")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("retryAfter = %d, want > 0", d.RetryAfter)
	}

	// TTL expiry opens a fresh window.
	mr.FastForward(time.Minute + time.Second)
	d, err = l.Increment(ctx, key)
	if err != nil {
		t.Fatalf("post-expiry increment: %v", err)
	}
	if !d.Allowed || d.Remaining != 4 {
		t.Errorf("post-expiry = %+v", d)
	}
}

func TestRedisCheckAndReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newRedisLimiter(t)
	key := Key{LimitType: "api", Identifier: "member-2", Endpoint: "/v1/export"}

	d, err := l.Check(ctx, key)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed || d.Remaining != 5 {
		t.Errorf("unseen check = %+v", d)
	}

	if _, err := l.Increment(ctx, key); err != nil {
		t.Fatalf("increment: %v", err)
	}
	d, err = l.Check(ctx, key)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Count != 1 || d.Remaining != 4 {
		t.Errorf("check = %+v", d)
	}

	if err := l.Reset(ctx, key); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, err = l.Check(ctx, key)
	if err != nil {
		t.Fatalf("check after reset: %v", err)
	}
	if d.Count != 0 {
		t.Errorf("count after reset = %d", d.Count)
	}
}

func TestRedisIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	l := New(store, map[string]Policy{
		"api": {MaxRequests: 10, Window: time.Minute},
	})
	key := Key{LimitType: "api", Identifier: "member-busy", Endpoint: "/v1/leads"}

	const workers = 25
	decisions := make(chan Decision, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Increment(ctx, key)
			if err != nil {
				t.Errorf("concurrent increment: %v", err)
				return
			}
			decisions <- d
		}()
	}
	wg.Wait()
	close(decisions)

	allowed := 0
	counts := map[int]bool{}
	for d := range decisions {
		if !d.Allowed {
			continue
		}
		allowed++
		if counts[d.Count] {
			t.Errorf("duplicate count %d across allowed increments", d.Count)
		}
		counts[d.Count] = true
	}
	if allowed != 10 {
		t.Errorf("allowed = %d, want 10", allowed)
	}
}

func TestRedisDeniedDoesNotGrowCounter(t *testing.T) {
	ctx := context.Background()
	l, _ := newRedisLimiter(t)
	key := Key{LimitType: "api", Identifier: "member-3", Endpoint: "/v1/bulk"}

	for i := 0; i < 5; i++ {
		if _, err := l.Increment(ctx, key); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		d, err := l.Increment(ctx, key)
		if err != nil {
			t.Fatalf("denied increment: %v", err)
		}
		if d.Allowed {
			t.Fatal("increment at limit allowed")
		}
		if d.Count != 5 {
			t.Errorf("count grew past limit: %d", d.Count)
		}
	}
}
