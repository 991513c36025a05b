package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dropp/internal/auth"
	"dropp/internal/datastore"
	"dropp/internal/lock"
	"dropp/internal/models"
	"dropp/internal/observability"
	"dropp/internal/repository"
	"dropp/internal/validation"
)

const maxDisplayNameLength = 50

// AccountService manages user accounts and the records they own.
type AccountService struct {
	users    repository.UserRepository
	conns    repository.ConnectionStore
	locker   lock.PairLocker
	reporter *InconsistencyReporter
}

// NewAccountService returns a new AccountService.
func NewAccountService(
	users repository.UserRepository,
	conns repository.ConnectionStore,
	locker lock.PairLocker,
	reporter *InconsistencyReporter,
) *AccountService {
	return &AccountService{
		users:    users,
		conns:    conns,
		locker:   locker,
		reporter: reporter,
	}
}

// CreateUser registers a new account.
func (s *AccountService) CreateUser(ctx context.Context, username, displayName, password string) (*models.User, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewInvalidRequestError(err.Error()).With("invalidParameter", "username")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}
	if len(displayName) > maxDisplayNameLength {
		return nil, models.NewInvalidRequestError("Display name is too long").With("invalidParameter", "display_name")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, models.NewInvalidRequestError(err.Error()).With("invalidParameter", "password")
		}
		return nil, err
	}

	release, err := s.acquire(ctx, username, "Username is being registered")
	if err != nil {
		return nil, err
	}
	defer release()

	exists, err := s.users.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError("Username already taken").With("username", username)
	}

	// A previous account of the same name may have left records behind
	// after a failed cleanup. The new account starts empty.
	if err := s.users.Delete(ctx, username); err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "user created", slog.String("username", username))
	return user, nil
}

// Authenticate returns the user when password matches.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if models.IsKind(err, models.KindResourceNotFound) {
			return nil, models.NewInvalidRequestError("Invalid credentials")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, models.NewInvalidRequestError("Invalid credentials")
	}
	return user, nil
}

// GetUser returns the public profile of username with relationship counts.
func (s *AccountService) GetUser(ctx context.Context, username string) (*models.UserProfile, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewInvalidRequestError(err.Error()).With("invalidParameter", "username")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	follows, err := s.conns.GetConnections(ctx, username, models.ConnectionFollows)
	if err != nil {
		return nil, err
	}
	followers, err := s.conns.GetConnections(ctx, username, models.ConnectionFollowers)
	if err != nil {
		return nil, err
	}

	return &models.UserProfile{
		Username:       user.Username,
		DisplayName:    user.DisplayName,
		Bio:            user.Bio,
		CreatedAt:      user.CreatedAt,
		FollowsCount:   len(follows),
		FollowersCount: len(followers),
	}, nil
}

// DeleteAccount removes actor and every record other users hold about them.
// Reciprocal records are removed concurrently and best effort; only the
// removal of actor's own subtree decides the result.
func (s *AccountService) DeleteAccount(ctx context.Context, actor string) (err error) {
	ctx, span := observability.StartSpan(ctx, "account.delete", actor, actor)
	defer func() { finish(span, "delete_account", err) }()

	// Follow workflows involving actor lock actor too, so none can write
	// into the subtree between the reads below and its removal.
	release, err := s.acquire(ctx, actor, "Another operation on this account is in progress")
	if err != nil {
		return err
	}
	defer release()

	exists, err := s.users.Exists(ctx, actor)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", actor)
	}

	follows, err := s.conns.GetConnections(ctx, actor, models.ConnectionFollows)
	if err != nil {
		return err
	}
	followers, err := s.conns.GetConnections(ctx, actor, models.ConnectionFollowers)
	if err != nil {
		return err
	}
	sent, err := s.conns.GetRequests(ctx, models.RequestFollow, actor)
	if err != nil {
		return err
	}
	received, err := s.conns.GetRequests(ctx, models.RequestFollower, actor)
	if err != nil {
		return err
	}

	var items []cleanupItem
	for other := range follows {
		items = append(items, s.connectionCleanup(other, models.ConnectionFollowers, actor))
	}
	for other := range followers {
		items = append(items, s.connectionCleanup(other, models.ConnectionFollows, actor))
	}
	for other := range sent {
		items = append(items, s.requestCleanup(other, models.RequestFollower, actor))
	}
	for other := range received {
		items = append(items, s.requestCleanup(other, models.RequestFollow, actor))
	}

	runCleanup(ctx, s.reporter, "delete_account", "account "+actor+" deleted", items)

	if err := s.users.Delete(ctx, actor); err != nil {
		return err
	}

	observability.Logger.InfoContext(ctx, "account deleted",
		slog.String("username", actor),
		slog.Int("reciprocal_records", len(items)),
	)
	return nil
}

func (s *AccountService) acquire(ctx context.Context, username, busyMessage string) (lock.Release, error) {
	release, err := lock.AcquireUsers(ctx, s.locker, username)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrBusy) {
		return nil, models.NewConflictError(busyMessage).With("username", username)
	}
	return nil, models.NewStoreError("lock", username, err)
}

func (s *AccountService) connectionCleanup(owner string, kind models.ConnectionKind, other string) cleanupItem {
	return cleanupItem{
		path: datastore.Join(repository.ConnectionPath(owner, kind), other),
		del: func(ctx context.Context) error {
			return s.conns.DeleteConnection(ctx, owner, kind, other)
		},
	}
}

func (s *AccountService) requestCleanup(owner string, kind models.RequestKind, other string) cleanupItem {
	return cleanupItem{
		path: datastore.Join(repository.RequestPath(owner, kind), other),
		del: func(ctx context.Context) error {
			return s.conns.DeleteRequest(ctx, kind, owner, other)
		},
	}
}
