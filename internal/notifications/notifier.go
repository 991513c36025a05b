// Package notifications publishes social graph events to per-user Redis channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"dropp/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event type constants prevent typos in event names.
const (
	EventFollowRequestReceived  = "follow_request_received"
	EventFollowRequestSent      = "follow_request_sent"
	EventFollowRequestAccepted  = "follow_request_accepted"
	EventFollowerAdded          = "follower_added"
	EventFollowRequestDeclined  = "follow_request_declined"
	EventFollowRequestWithdrawn = "follow_request_withdrawn"
	EventFollowerRemoved        = "follower_removed"
	EventUnfollowed             = "unfollowed"
)

const userChannelPrefix = "notifications:user:"

// Event is the JSON message published on a user channel.
type Event struct {
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every publish into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(username string) string {
	return userChannelPrefix + username
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, username, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(username), payload).Err()
}

// PublishEvent encodes ev and publishes it to recipient's channel. Failures
// are logged and not returned; notifications never fail a graph operation.
func (n *Notifier) PublishEvent(ctx context.Context, recipient string, ev Event) {
	if n == nil || n.rdb == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		observability.Logger.ErrorContext(ctx, "failed to marshal event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := n.PublishUser(context.WithoutCancel(ctx), recipient, string(payload)); err != nil {
		observability.Logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", ev.Type),
			slog.String("recipient", recipient),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe delivers events published to username's channel until ctx is
// done. A message that does not decode is skipped.
func (n *Notifier) Subscribe(ctx context.Context, username string, onEvent func(Event)) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("notifications: no redis client configured")
	}
	sub := n.rdb.Subscribe(ctx, UserChannel(username))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", UserChannel(username), err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					observability.Logger.Warn("skipping malformed event",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in event subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
