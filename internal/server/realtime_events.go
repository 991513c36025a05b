package server

import (
	"context"

	"dropp/internal/featureflags"
	"dropp/internal/notifications"
)

// publishUserEvent notifies recipient about a change made by actor. It is
// called only after the graph write succeeded, and only when graph_events
// is enabled for the recipient.
func (s *Server) publishUserEvent(ctx context.Context, recipient, eventType, actor, target string) {
	if !s.featureFlags.Enabled(featureflags.GraphEvents, recipient) {
		return
	}
	s.notifier.PublishEvent(ctx, recipient, notifications.Event{
		Type:   eventType,
		Actor:  actor,
		Target: target,
	})
}
