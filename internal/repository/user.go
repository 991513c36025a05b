package repository

import (
	"context"

	"dropp/internal/datastore"
	"dropp/internal/models"
)

// UserRepository defines the interface for user profile operations
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, username string) error
}

// userRepository implements UserRepository
type userRepository struct {
	ds datastore.Datastore
}

// NewUserRepository creates a new user repository
func NewUserRepository(ds datastore.Datastore) UserRepository {
	return &userRepository{ds: ds}
}

// UserPath returns the path of a user's profile node.
func UserPath(username string) string {
	return datastore.Path(usersRoot, username)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	path := UserPath(username)
	rec, err := r.ds.Get(ctx, path)
	if err != nil {
		return nil, models.NewStoreError("get", path, err)
	}
	if rec == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return models.UserFromRecord(username, rec), nil
}

func (r *userRepository) Exists(ctx context.Context, username string) (bool, error) {
	path := UserPath(username)
	rec, err := r.ds.Get(ctx, path)
	if err != nil {
		return false, models.NewStoreError("get", path, err)
	}
	return rec != nil, nil
}

// Create writes the profile node. It does not check for an existing user;
// callers serialize creation and check first.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	path := UserPath(user.Username)
	if err := r.ds.Update(ctx, path, user.ToRecord()); err != nil {
		return models.NewStoreError("update", path, err)
	}
	return nil
}

// Delete removes the profile node and every collection below it.
func (r *userRepository) Delete(ctx context.Context, username string) error {
	path := UserPath(username)
	if err := r.ds.Delete(ctx, path); err != nil {
		return models.NewStoreError("delete", path, err)
	}
	return nil
}
