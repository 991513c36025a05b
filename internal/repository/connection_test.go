package repository

import (
	"context"
	"testing"

	"dropp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStore_Integration(t *testing.T) {
	store := NewConnectionStore(newTestDatastore(t))
	ctx := context.Background()

	t.Run("empty collections are empty maps, never nil", func(t *testing.T) {
		for _, kind := range []models.ConnectionKind{models.ConnectionFollows, models.ConnectionFollowers} {
			got, err := store.GetConnections(ctx, "amy", kind)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		}
		for _, kind := range []models.RequestKind{models.RequestFollow, models.RequestFollower} {
			got, err := store.GetRequests(ctx, kind, "amy")
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		}
	})

	t.Run("PutConnection and GetConnections", func(t *testing.T) {
		require.NoError(t, store.PutConnection(ctx, "amy", models.ConnectionFollowers, "bob"))

		got, err := store.GetConnections(ctx, "amy", models.ConnectionFollowers)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"bob": "bob"}, got)

		follows, err := store.GetConnections(ctx, "amy", models.ConnectionFollows)
		require.NoError(t, err)
		assert.Empty(t, follows)
	})

	t.Run("DeleteConnection", func(t *testing.T) {
		require.NoError(t, store.DeleteConnection(ctx, "amy", models.ConnectionFollowers, "bob"))

		got, err := store.GetConnections(ctx, "amy", models.ConnectionFollowers)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("PutRequest and DeleteRequest", func(t *testing.T) {
		require.NoError(t, store.PutRequest(ctx, models.RequestFollow, "amy", "cyd"))
		require.NoError(t, store.PutRequest(ctx, models.RequestFollow, "amy", "dan"))

		got, err := store.GetRequests(ctx, models.RequestFollow, "amy")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"cyd": "cyd", "dan": "dan"}, got)

		require.NoError(t, store.DeleteRequest(ctx, models.RequestFollow, "amy", "cyd"))
		got, err = store.GetRequests(ctx, models.RequestFollow, "amy")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"dan": "dan"}, got)
	})
}

func TestConnectionStore_InvalidKindPanics(t *testing.T) {
	store := NewConnectionStore(newTestDatastore(t))
	ctx := context.Background()

	assert.Panics(t, func() {
		_, _ = store.GetConnections(ctx, "amy", models.ConnectionKind("friends"))
	})
	assert.Panics(t, func() {
		_, _ = store.GetRequests(ctx, models.RequestKind("followers"), "amy")
	})
	assert.Panics(t, func() {
		_ = store.PutConnection(ctx, "amy", models.ConnectionKind(""), "bob")
	})
	assert.Panics(t, func() {
		_ = store.DeleteRequest(ctx, models.RequestKind("pending"), "amy", "bob")
	})
}

func TestConnectionStore_StoreFailure(t *testing.T) {
	store := NewConnectionStore(failingStore{})
	ctx := context.Background()

	got, err := store.GetConnections(ctx, "amy", models.ConnectionFollows)
	assert.Nil(t, got)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	assert.ErrorIs(t, err, errStoreDown)

	_, err = store.GetRequests(ctx, models.RequestFollower, "amy")
	assert.True(t, models.IsKind(err, models.KindStoreFailure))

	err = store.PutRequest(ctx, models.RequestFollow, "amy", "bob")
	assert.True(t, models.IsKind(err, models.KindStoreFailure))

	err = store.DeleteConnection(ctx, "amy", models.ConnectionFollows, "bob")
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/amy/follows", ConnectionPath("amy", models.ConnectionFollows))
	assert.Equal(t, "users/amy/follower_requests", RequestPath("amy", models.RequestFollower))
	assert.Equal(t, "users/amy", UserPath("amy"))
}
