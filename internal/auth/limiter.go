package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SendLimiter remembers when a code was last issued to an identifier.
//
// Allow and Record are separate calls so a code is only counted once it
// was actually delivered. The pair is not atomic: two simultaneous requests
// for the same identifier can both pass Allow. The limit is advisory.
type SendLimiter interface {
	// Allow reports whether a new code may be sent to identifier at now.
	Allow(ctx context.Context, identifier string, now time.Time) (bool, error)
	// Record notes that a code was sent to identifier at now.
	Record(ctx context.Context, identifier string, now time.Time) error
}

// MemoryLimiter keeps last-send times in process memory. State is lost on
// restart and not shared between instances.
type MemoryLimiter struct {
	window time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{window: window, lastSent: make(map[string]time.Time)}
}

func (l *MemoryLimiter) Allow(_ context.Context, identifier string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastSent[identifier]
	return !ok || now.Sub(last) >= l.window, nil
}

// Record stores the send time and drops entries whose window has passed,
// which keeps the map bounded by the number of recent senders.
func (l *MemoryLimiter) Record(_ context.Context, identifier string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, t := range l.lastSent {
		if now.Sub(t) >= l.window {
			delete(l.lastSent, id)
		}
	}
	l.lastSent[identifier] = now
	return nil
}

// Len returns the number of tracked identifiers.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSent)
}

// RedisLimiter shares the window between API instances. Each identifier is
// a key that expires after the window, so Allow is a single EXISTS.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, window: window, prefix: "bookclub:otp:last_sent:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, identifier string, _ time.Time) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.prefix+identifier).Result()
	if err != nil {
		return false, fmt.Errorf("auth: checking send limit: %w", err)
	}
	return n == 0, nil
}

func (l *RedisLimiter) Record(ctx context.Context, identifier string, now time.Time) error {
	err := l.rdb.Set(ctx, l.prefix+identifier, now.UTC().Format(time.RFC3339), l.window).Err()
	if err != nil {
		return fmt.Errorf("auth: recording send: %w", err)
	}
	return nil
}

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("auth: connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}
