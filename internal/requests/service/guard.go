package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptGuard bounds completion-code verification attempts per request.
// Increment returns the attempt count including the current one; Reset
// clears the counter when a code is reissued or verified.
type AttemptGuard interface {
	Increment(ctx context.Context, requestID uuid.UUID) (int, error)
	Reset(ctx context.Context, requestID uuid.UUID) error
}

// RedisAttemptGuard counts attempts in Redis so the bound holds across
// instances. Counters expire with the code TTL.
type RedisAttemptGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAttemptGuard creates a Redis-backed attempt guard.
func NewRedisAttemptGuard(client *redis.Client, ttl time.Duration) *RedisAttemptGuard {
	return &RedisAttemptGuard{client: client, ttl: ttl}
}

func attemptKey(requestID uuid.UUID) string {
	return "completion:attempts:" + requestID.String()
}

// Increment bumps the counter, setting the expiry on first use.
func (g *RedisAttemptGuard) Increment(ctx context.Context, requestID uuid.UUID) (int, error) {
	key := attemptKey(requestID)
	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, g.ttl).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}

// Reset removes the counter.
func (g *RedisAttemptGuard) Reset(ctx context.Context, requestID uuid.UUID) error {
	return g.client.Del(ctx, attemptKey(requestID)).Err()
}

// MemoryAttemptGuard is a process-local guard for deployments without
// Redis and for tests.
type MemoryAttemptGuard struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

// NewMemoryAttemptGuard creates an in-process attempt guard.
func NewMemoryAttemptGuard() *MemoryAttemptGuard {
	return &MemoryAttemptGuard{counts: make(map[uuid.UUID]int)}
}

func (g *MemoryAttemptGuard) Increment(_ context.Context, requestID uuid.UUID) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[requestID]++
	return g.counts[requestID], nil
}

func (g *MemoryAttemptGuard) Reset(_ context.Context, requestID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.counts, requestID)
	return nil
}

// NoopAttemptGuard never limits. Used only until a real guard is wired.
type NoopAttemptGuard struct{}

func (NoopAttemptGuard) Increment(context.Context, uuid.UUID) (int, error) { return 1, nil }
func (NoopAttemptGuard) Reset(context.Context, uuid.UUID) error            { return nil }
