package repository

import (
	"context"
	"testing"
	"time"

	"dropp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Integration(t *testing.T) {
	ds := newTestDatastore(t)
	repo := NewUserRepository(ds)
	conns := NewConnectionStore(ds)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("GetByUsername missing", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "amy")
		assert.True(t, models.IsKind(err, models.KindResourceNotFound))

		ok, err := repo.Exists(ctx, "amy")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Create and GetByUsername", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.User{
			Username:     "amy",
			DisplayName:  "Amy",
			PasswordHash: "hash",
			CreatedAt:    created,
		}))

		u, err := repo.GetByUsername(ctx, "amy")
		require.NoError(t, err)
		assert.Equal(t, "amy", u.Username)
		assert.Equal(t, "Amy", u.DisplayName)
		assert.Equal(t, "hash", u.PasswordHash)
		assert.True(t, created.Equal(u.CreatedAt))

		ok, err := repo.Exists(ctx, "amy")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Delete removes collections", func(t *testing.T) {
		require.NoError(t, conns.PutConnection(ctx, "amy", models.ConnectionFollows, "bob"))
		require.NoError(t, repo.Delete(ctx, "amy"))

		ok, err := repo.Exists(ctx, "amy")
		require.NoError(t, err)
		assert.False(t, ok)

		follows, err := conns.GetConnections(ctx, "amy", models.ConnectionFollows)
		require.NoError(t, err)
		assert.Empty(t, follows)
	})
}

func TestUserRepository_StoreFailure(t *testing.T) {
	repo := NewUserRepository(failingStore{})
	ctx := context.Background()

	_, err := repo.GetByUsername(ctx, "amy")
	assert.True(t, models.IsKind(err, models.KindStoreFailure))

	_, err = repo.Exists(ctx, "amy")
	assert.True(t, models.IsKind(err, models.KindStoreFailure))

	assert.True(t, models.IsKind(repo.Delete(ctx, "amy"), models.KindStoreFailure))
}
