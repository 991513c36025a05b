package service

import (
	"context"
	"errors"
	"log/slog"

	"dropp/internal/datastore"
	"dropp/internal/lock"
	"dropp/internal/models"
	"dropp/internal/observability"
	"dropp/internal/repository"
	"dropp/internal/validation"
)

// FollowService validates follow actions by an authenticated user and runs
// them against the social graph. State-changing operations hold the locks of
// both users from their first read to their last write.
type FollowService struct {
	graph    *SocialGraphService
	conns    repository.ConnectionStore
	users    repository.UserRepository
	locker   lock.PairLocker
	reporter *InconsistencyReporter
}

// NewFollowService returns a new FollowService. locker may be nil, in which
// case operations are not serialized.
func NewFollowService(
	graph *SocialGraphService,
	conns repository.ConnectionStore,
	users repository.UserRepository,
	locker lock.PairLocker,
	reporter *InconsistencyReporter,
) *FollowService {
	return &FollowService{
		graph:    graph,
		conns:    conns,
		users:    users,
		locker:   locker,
		reporter: reporter,
	}
}

// RequestToFollow creates a pending follow request from actor to target.
func (s *FollowService) RequestToFollow(ctx context.Context, actor, target string) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow.request", actor, target)
	defer func() { finish(span, "request_to_follow", err) }()

	if err := validatePair(actor, target, "Cannot follow yourself"); err != nil {
		return err
	}

	release, err := s.acquire(ctx, actor, target)
	if err != nil {
		return err
	}
	defer release()

	if err := s.requireUser(ctx, actor); err != nil {
		return err
	}
	if err := s.requireUser(ctx, target); err != nil {
		return err
	}

	follows, err := s.conns.GetConnections(ctx, actor, models.ConnectionFollows)
	if err != nil {
		return err
	}
	if _, ok := follows[target]; ok {
		return models.NewConflictError("You already follow this user").With("username", target)
	}

	sent, err := s.conns.GetRequests(ctx, models.RequestFollow, actor)
	if err != nil {
		return err
	}
	if _, ok := sent[target]; ok {
		return models.NewConflictError("Follow request already sent").With("username", target)
	}

	received, err := s.conns.GetRequests(ctx, models.RequestFollower, actor)
	if err != nil {
		return err
	}
	if _, ok := received[target]; ok {
		return models.NewConflictError("This user has already requested to follow you").With("username", target)
	}

	return s.graph.AddRequest(ctx, actor, target)
}

// RespondToFollowerRequest accepts or declines the pending request from
// requester to actor.
func (s *FollowService) RespondToFollowerRequest(ctx context.Context, actor, requester string, intent models.RequestIntent) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow.respond", actor, requester)
	defer func() { finish(span, "respond_to_follower_request", err) }()

	if !intent.Valid() {
		return models.NewInvalidRequestError("Intent must be accept or decline").With("invalidParameter", "intent")
	}
	if err := validatePair(actor, requester, "Cannot respond to a request from yourself"); err != nil {
		return err
	}

	release, err := s.acquire(ctx, actor, requester)
	if err != nil {
		return err
	}
	defer release()

	received, err := s.conns.GetRequests(ctx, models.RequestFollower, actor)
	if err != nil {
		return err
	}
	if _, ok := received[requester]; !ok {
		return models.NewNotFoundError("Follower request", requester)
	}

	exists, err := s.users.Exists(ctx, requester)
	if err != nil {
		return err
	}
	if !exists {
		// Both halves of the request go, in case the requester's subtree
		// was recreated after the account was removed.
		runCleanup(ctx, s.reporter, "respond_to_follower_request", "user "+requester+" no longer exists", []cleanupItem{
			{
				path: datastore.Join(repository.RequestPath(actor, models.RequestFollower), requester),
				del: func(ctx context.Context) error {
					return s.conns.DeleteRequest(ctx, models.RequestFollower, actor, requester)
				},
			},
			{
				path: datastore.Join(repository.RequestPath(requester, models.RequestFollow), actor),
				del: func(ctx context.Context) error {
					return s.conns.DeleteRequest(ctx, models.RequestFollow, requester, actor)
				},
			},
		})
		return models.NewNotFoundError("User", requester)
	}

	if intent == models.IntentAccept {
		if err := s.graph.AddConnection(ctx, actor, requester); err != nil {
			return err
		}
	}
	return s.graph.RemoveRequest(ctx, actor, models.RequestFollower, requester, models.RequestFollow)
}

// RemoveFollowRequest withdraws actor's pending request to target.
func (s *FollowService) RemoveFollowRequest(ctx context.Context, actor, target string) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow.withdraw", actor, target)
	defer func() { finish(span, "remove_follow_request", err) }()

	return s.removeLink(ctx, actor, target, pairLink{
		op:       "remove_follow_request",
		resource: "Follow request",
		actorSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetRequests(ctx, models.RequestFollow, actor)
		},
		targetSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetRequests(ctx, models.RequestFollower, target)
		},
		deleteActorSide: func(ctx context.Context) error {
			return s.conns.DeleteRequest(ctx, models.RequestFollow, actor, target)
		},
		deleteBoth: func(ctx context.Context) error {
			return s.graph.RemoveRequest(ctx, actor, models.RequestFollow, target, models.RequestFollower)
		},
	})
}

// RemoveFollower removes target from actor's followers.
func (s *FollowService) RemoveFollower(ctx context.Context, actor, target string) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow.remove_follower", actor, target)
	defer func() { finish(span, "remove_follower", err) }()

	return s.removeLink(ctx, actor, target, pairLink{
		op:       "remove_follower",
		resource: "Follower",
		actorSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetConnections(ctx, actor, models.ConnectionFollowers)
		},
		targetSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetConnections(ctx, target, models.ConnectionFollows)
		},
		deleteActorSide: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, actor, models.ConnectionFollowers, target)
		},
		deleteBoth: func(ctx context.Context) error {
			return s.graph.RemoveConnection(ctx, actor, models.ConnectionFollowers, target, models.ConnectionFollows)
		},
	})
}

// Unfollow stops actor following target.
func (s *FollowService) Unfollow(ctx context.Context, actor, target string) (err error) {
	ctx, span := observability.StartSpan(ctx, "follow.unfollow", actor, target)
	defer func() { finish(span, "unfollow", err) }()

	return s.removeLink(ctx, actor, target, pairLink{
		op:       "unfollow",
		resource: "Follow",
		actorSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetConnections(ctx, actor, models.ConnectionFollows)
		},
		targetSide: func(ctx context.Context) (map[string]string, error) {
			return s.conns.GetConnections(ctx, target, models.ConnectionFollowers)
		},
		deleteActorSide: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, actor, models.ConnectionFollows, target)
		},
		deleteBoth: func(ctx context.Context) error {
			return s.graph.RemoveConnection(ctx, actor, models.ConnectionFollows, target, models.ConnectionFollowers)
		},
	})
}

// ListConnections returns the sorted usernames in one of actor's connection collections.
func (s *FollowService) ListConnections(ctx context.Context, actor string, kind models.ConnectionKind) ([]string, error) {
	if !kind.Valid() {
		return nil, models.NewInvalidRequestError("Unknown connection kind").With("invalidParameter", "kind")
	}
	set, err := s.conns.GetConnections(ctx, actor, kind)
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

// ListRequests returns the sorted usernames in one of actor's request collections.
func (s *FollowService) ListRequests(ctx context.Context, actor string, kind models.RequestKind) ([]string, error) {
	if !kind.Valid() {
		return nil, models.NewInvalidRequestError("Unknown request kind").With("invalidParameter", "kind")
	}
	set, err := s.conns.GetRequests(ctx, kind, actor)
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

// RelationshipStatus describes how actor relates to target.
func (s *FollowService) RelationshipStatus(ctx context.Context, actor, target string) (*models.RelationshipStatus, error) {
	if err := validatePair(actor, target, "Cannot look up a relationship with yourself"); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, target); err != nil {
		return nil, err
	}

	follows, err := s.conns.GetConnections(ctx, actor, models.ConnectionFollows)
	if err != nil {
		return nil, err
	}
	followers, err := s.conns.GetConnections(ctx, actor, models.ConnectionFollowers)
	if err != nil {
		return nil, err
	}
	sent, err := s.conns.GetRequests(ctx, models.RequestFollow, actor)
	if err != nil {
		return nil, err
	}
	received, err := s.conns.GetRequests(ctx, models.RequestFollower, actor)
	if err != nil {
		return nil, err
	}

	status := &models.RelationshipStatus{Username: target, Status: models.RelationshipNone}
	switch {
	case has(follows, target):
		status.Status = models.RelationshipFollowing
	case has(sent, target):
		status.Status = models.RelationshipPendingSent
	case has(received, target):
		status.Status = models.RelationshipPendingReceived
	}
	status.FollowedBy = has(followers, target)
	return status, nil
}

// pairLink describes a two-sided record between actor and target for removal.
type pairLink struct {
	op              string
	resource        string
	actorSide       func(context.Context) (map[string]string, error)
	targetSide      func(context.Context) (map[string]string, error)
	deleteActorSide func(context.Context) error
	deleteBoth      func(context.Context) error
}

// removeLink deletes a relationship or request that either side still
// records, so a retry after a half-finished removal completes it. When the
// target account is gone only the actor's record is removed.
func (s *FollowService) removeLink(ctx context.Context, actor, target string, link pairLink) error {
	if err := validatePair(actor, target, "Cannot target yourself"); err != nil {
		return err
	}

	release, err := s.acquire(ctx, actor, target)
	if err != nil {
		return err
	}
	defer release()

	actorSet, err := link.actorSide(ctx)
	if err != nil {
		return err
	}
	targetSet, err := link.targetSide(ctx)
	if err != nil {
		return err
	}
	if !has(actorSet, target) && !has(targetSet, actor) {
		return models.NewNotFoundError(link.resource, target)
	}

	exists, err := s.users.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		observability.Logger.WarnContext(ctx, "linked user no longer exists, removing local record only",
			slog.String("operation", link.op),
			slog.String("username", actor),
			slog.String("target", target),
		)
		return link.deleteActorSide(ctx)
	}

	return link.deleteBoth(ctx)
}

// acquire locks both participants for the rest of the operation.
func (s *FollowService) acquire(ctx context.Context, a, b string) (lock.Release, error) {
	release, err := lock.AcquireUsers(ctx, s.locker, a, b)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrBusy) {
		return nil, models.NewConflictError("Another operation on this relationship is in progress").
			With("pair", lock.PairKey(a, b))
	}
	return nil, models.NewStoreError("lock", lock.PairKey(a, b), err)
}

func (s *FollowService) requireUser(ctx context.Context, username string) error {
	exists, err := s.users.Exists(ctx, username)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", username)
	}
	return nil
}

func validatePair(actor, target, selfMessage string) error {
	if actor == "" {
		return models.NewInvalidRequestError("Missing acting user").With("invalidParameter", "actor")
	}
	if err := validation.ValidateUsername(actor); err != nil {
		return models.NewInvalidRequestError(err.Error()).With("invalidParameter", "actor")
	}
	if err := validation.ValidateUsername(target); err != nil {
		return models.NewInvalidRequestError(err.Error()).With("invalidParameter", "username")
	}
	if actor == target {
		return models.NewInvalidRequestError(selfMessage).With("invalidParameter", "username")
	}
	return nil
}
