// Package lock serializes state-changing operations on user accounts.
//
// Every follow workflow reads both users' collections and then writes them.
// Holding a lock on each participant across the read and the writes keeps
// two concurrent requests from both passing validation, and keeps an account
// deletion from interleaving with a follow workflow on that account.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"dropp/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the pair lock could not be acquired in time.
var ErrBusy = errors.New("lock: pair is busy")

// Release gives the lock back. Calling it more than once is a no-op.
type Release func()

// PairLocker acquires an exclusive lock on the unordered pair {a, b}.
type PairLocker interface {
	Acquire(ctx context.Context, a, b string) (Release, error)
}

// PairKey returns the order-insensitive key for the pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// AcquireUsers locks each user on its degenerate pair {u, u}. Users are
// locked in sorted order so two callers that share a user cannot each hold
// the lock the other waits for. If any lock is refused the ones already
// taken are released. A nil locker grants everything.
func AcquireUsers(ctx context.Context, l PairLocker, users ...string) (Release, error) {
	if l == nil {
		return func() {}, nil
	}
	ordered := slices.Clone(users)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]Release, 0, len(ordered))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, u := range ordered {
		release, err := l.Acquire(ctx, u, u)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

const retryInterval = 10 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds pair locks as Redis keys set with NX and a TTL so a
// crashed holder cannot block the pair forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker returns a RedisLocker. ttl bounds how long a lock can be
// held; wait bounds how long Acquire retries.
func NewRedisLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, wait: wait}
}

func (l *RedisLocker) key(a, b string) string {
	return l.prefix + "lock:pair:" + PairKey(a, b)
}

// Acquire retries SET NX until it wins, the wait elapses, or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, a, b string) (Release, error) {
	key := l.key(a, b)
	token := uuid.NewString()
	start := time.Now()
	deadline := start.Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			observability.PairLockWaits.WithLabelValues("redis", "error").Observe(time.Since(start).Seconds())
			return nil, err
		}
		if ok {
			observability.PairLockWaits.WithLabelValues("redis", "acquired").Observe(time.Since(start).Seconds())
			return l.release(key, token), nil
		}
		if time.Now().After(deadline) {
			observability.PairLockWaits.WithLabelValues("redis", "busy").Observe(time.Since(start).Seconds())
			return nil, ErrBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *RedisLocker) release(key, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Released on a fresh context so a cancelled request still frees the pair.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				observability.Logger.Warn("pair lock release failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}

// LocalLocker serializes pairs inside one process. It is used when no Redis
// client is configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a LocalLocker that waits at most wait for a pair.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

// Acquire blocks until the pair is free, the wait elapses, or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, a, b string) (Release, error) {
	key := PairKey(a, b)
	start := time.Now()

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		observability.PairLockWaits.WithLabelValues("local", "acquired").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(key, s)
			})
		}, nil
	case <-timer.C:
		l.unref(key, s)
		observability.PairLockWaits.WithLabelValues("local", "busy").Observe(time.Since(start).Seconds())
		return nil, ErrBusy
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

var (
	_ PairLocker = (*RedisLocker)(nil)
	_ PairLocker = (*LocalLocker)(nil)
)
