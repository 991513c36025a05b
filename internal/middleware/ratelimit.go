package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dropp/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable is returned by Allow when no Redis client is set.
var ErrLimiterUnavailable = errors.New("rate limiter has no redis client")

// KeyFunc names the bucket a request is counted in.
type KeyFunc func(c *fiber.Ctx) string

// FollowPairKey counts follow requests per requester and target. Repeatedly
// sending and withdrawing a request to one user does not spend the budget
// for any other user. Anonymous callers fall back to their IP.
func FollowPairKey(c *fiber.Ctx) string {
	actor := CurrentUser(c)
	if actor == "" {
		return "ip:" + c.IP()
	}
	return actor + ">" + c.Params("username")
}

// ActorKey counts every request of the authenticated user together.
func ActorKey(c *fiber.Ctx) string {
	if actor := CurrentUser(c); actor != "" {
		return "user:" + actor
	}
	return "ip:" + c.IP()
}

// Limiter is a fixed-window counter in Redis under rl:<resource>:<key>.
type Limiter struct {
	rdb      *redis.Client
	resource string
	limit    int
	window   time.Duration
	key      KeyFunc

	// FailClosed answers 503 when Redis fails instead of letting the request through.
	FailClosed bool
	// Disabled lets every request through, used outside production.
	Disabled bool
}

// NewLimiter allows limit requests per window for each key.
func NewLimiter(rdb *redis.Client, resource string, limit int, window time.Duration, key KeyFunc) *Limiter {
	if key == nil {
		key = ActorKey
	}
	return &Limiter{rdb: rdb, resource: resource, limit: limit, window: window, key: key}
}

// LimitsDisabled reports whether rate limits are off for an APP_ENV value.
func LimitsDisabled(env string) bool {
	switch env {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// Allow counts one request against key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.Disabled || l.limit <= 0 {
		return true, nil
	}
	if l.rdb == nil {
		return false, ErrLimiterUnavailable
	}

	bucket := "rl:" + l.resource + ":" + key
	cnt, err := l.rdb.Incr(ctx, bucket).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.rdb.Expire(ctx, bucket, l.window)
	}
	return cnt <= int64(l.limit), nil
}

// Handler returns the Fiber middleware. It must run after AuthRequired and
// on a route whose params the KeyFunc reads.
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := l.key(c)
		allowed, err := l.Allow(c.UserContext(), key)
		if err != nil {
			observability.Logger.WarnContext(c.UserContext(), "rate limit check failed",
				slog.String("resource", l.resource),
				slog.String("key", key),
				slog.Bool("fail_closed", l.FailClosed),
				slog.String("error", err.Error()),
			)
			if l.FailClosed {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":    "Too many requests, try again later",
				"resource": l.resource,
			})
		}
		return c.Next()
	}
}
