package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists counters in Redis for deployments where every edge
// instance must observe the same counts. INCR is atomic on the server, and
// window expiry rides on the key TTL, so no sweep is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.String()
}

func (s *RedisStore) Increment(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, bool, error) {
	k := s.key(key)

	// At-limit keys are refused without bumping, so a sustained flood cannot
	// push the counter arbitrarily high.
	count, err := s.client.Get(ctx, k).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("read rate limit: %w", err)
	}
	if err == nil && count >= policy.MaxRequests {
		entry, err := s.entryFor(ctx, key, policy, now, count)
		if err != nil {
			return Entry{}, false, err
		}
		return entry, false, nil
	}

	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("increment rate limit: %w", err)
	}
	count = int(n)
	if count == 1 {
		// First request in the window owns the TTL.
		if err := s.client.PExpire(ctx, k, policy.Window).Err(); err != nil {
			return Entry{}, false, fmt.Errorf("set rate limit window: %w", err)
		}
	}
	if count > policy.MaxRequests {
		// Lost the read/incr race at the boundary; the key stays at limit
		// either way.
		entry, err := s.entryFor(ctx, key, policy, now, count)
		if err != nil {
			return Entry{}, false, err
		}
		return entry, false, nil
	}

	entry, err := s.entryFor(ctx, key, policy, now, count)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *RedisStore) Peek(ctx context.Context, key Key, policy Policy, now time.Time) (Entry, error) {
	count, err := s.client.Get(ctx, s.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return Entry{Key: key, Count: 0, WindowStart: now}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read rate limit: %w", err)
	}
	return s.entryFor(ctx, key, policy, now, count)
}

// entryFor reconstructs the window start from the remaining TTL.
func (s *RedisStore) entryFor(ctx context.Context, key Key, policy Policy, now time.Time, count int) (Entry, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("read rate limit ttl: %w", err)
	}
	windowStart := now
	if ttl > 0 {
		windowStart = now.Add(ttl).Add(-policy.Window)
	}
	return Entry{Key: key, Count: count, WindowStart: windowStart, UpdatedAt: now}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
