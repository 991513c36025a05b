package service

import (
	"context"
	"testing"

	"dropp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddConnection_WritesBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.graph.AddConnection(ctx, "amy", "bob"))

	assert.Contains(t, h.connections(t, "amy", models.ConnectionFollowers), "bob")
	assert.Contains(t, h.connections(t, "bob", models.ConnectionFollows), "amy")
	assert.Equal(t, []string{
		"update users/amy/followers",
		"update users/bob/follows",
	}, h.store.writes())
}

func TestAddConnection_FirstWriteFails(t *testing.T) {
	h := newHarness(t)
	h.store.failOn("update", "users/amy/followers")

	err := h.graph.AddConnection(context.Background(), "amy", "bob")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, []string{"update users/amy/followers"}, h.store.writes())
	assert.Empty(t, h.ledger())
}

func TestAddConnection_CompensatesSecondWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.store.failOn("update", "users/bob/follows")

	err := h.graph.AddConnection(context.Background(), "amy", "bob")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, []string{
		"update users/amy/followers",
		"update users/bob/follows",
		"delete users/amy/followers/bob",
	}, h.store.writes())
	assert.Empty(t, h.connections(t, "amy", models.ConnectionFollowers))
	assert.Empty(t, h.connections(t, "bob", models.ConnectionFollows))
	assert.Empty(t, h.ledger())
}

func TestAddConnection_CompensationFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t)
	h.store.failOn("update", "users/bob/follows")
	h.store.failOn("delete", "users/amy/followers/bob")

	err := h.graph.AddConnection(context.Background(), "amy", "bob")

	require.Error(t, err)
	var opErr *models.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.KindStoreFailure, opErr.Kind)
	assert.Equal(t, "users/bob/follows", opErr.Context["path"])

	assert.Contains(t, h.store.writes(), "delete users/amy/followers/bob")
	assert.Contains(t, h.connections(t, "amy", models.ConnectionFollowers), "bob")
	assert.Equal(t, []string{"add_connection"}, h.ledger())
}

func TestAddRequest_CompensatesSecondWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.store.failOn("update", "users/bob/follower_requests")

	err := h.graph.AddRequest(context.Background(), "amy", "bob")

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	assert.Empty(t, h.requests(t, models.RequestFollow, "amy"))
	assert.Contains(t, h.store.writes(), "delete users/amy/follow_requests/bob")
}

func TestRemoveConnection_RemovesBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.graph.AddConnection(ctx, "amy", "bob"))

	require.NoError(t, h.graph.RemoveConnection(ctx, "amy", models.ConnectionFollowers, "bob", models.ConnectionFollows))

	assert.Empty(t, h.connections(t, "amy", models.ConnectionFollowers))
	assert.Empty(t, h.connections(t, "bob", models.ConnectionFollows))
}

func TestRemoveConnection_SecondDeleteFailureIsNotCompensated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.graph.AddConnection(ctx, "amy", "bob"))
	h.store.resetCalls()
	h.store.failOn("delete", "users/bob/follows/amy")

	err := h.graph.RemoveConnection(ctx, "amy", models.ConnectionFollowers, "bob", models.ConnectionFollows)

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	// Step one stays in effect, step two matches its reported failure.
	assert.Empty(t, h.connections(t, "amy", models.ConnectionFollowers))
	assert.Contains(t, h.connections(t, "bob", models.ConnectionFollows), "amy")
	assert.Equal(t, []string{
		"delete users/amy/followers/bob",
		"delete users/bob/follows/amy",
	}, h.store.writes())
	assert.Equal(t, []string{"remove_connection"}, h.ledger())
}

func TestRemoveConnection_FirstDeleteFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.graph.AddConnection(ctx, "amy", "bob"))
	h.store.resetCalls()
	h.store.failOn("delete", "users/amy/followers/bob")

	err := h.graph.RemoveConnection(ctx, "amy", models.ConnectionFollowers, "bob", models.ConnectionFollows)

	require.Error(t, err)
	assert.Equal(t, []string{"delete users/amy/followers/bob"}, h.store.writes())
	assert.Contains(t, h.connections(t, "bob", models.ConnectionFollows), "amy")
}

func TestRemoveRequest_SymmetricCompensation(t *testing.T) {
	h := newHarness(t, withFlags("symmetric_compensation=on"))
	ctx := context.Background()
	require.NoError(t, h.graph.AddRequest(ctx, "amy", "bob"))
	h.store.failOn("delete", "users/bob/follower_requests/amy")

	err := h.graph.RemoveRequest(ctx, "amy", models.RequestFollow, "bob", models.RequestFollower)

	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindStoreFailure))
	assert.Contains(t, h.requests(t, models.RequestFollow, "amy"), "bob")
	assert.Contains(t, h.requests(t, models.RequestFollower, "bob"), "amy")
	assert.Empty(t, h.ledger())
}

func TestRemoveRequest_SymmetricCompensationFailure(t *testing.T) {
	h := newHarness(t, withFlags("symmetric_compensation=on"))
	ctx := context.Background()
	require.NoError(t, h.graph.AddRequest(ctx, "amy", "bob"))
	h.store.failOn("delete", "users/bob/follower_requests/amy")
	h.store.failOn("update", "users/amy/follow_requests")

	err := h.graph.RemoveRequest(ctx, "amy", models.RequestFollow, "bob", models.RequestFollower)

	require.Error(t, err)
	assert.Empty(t, h.requests(t, models.RequestFollow, "amy"))
	assert.Equal(t, []string{"remove_request"}, h.ledger())
}

func TestRemoveRequest_AsymmetricByDefault(t *testing.T) {
	h := newHarness(t, withFlags("symmetric_compensation=off"))
	ctx := context.Background()
	require.NoError(t, h.graph.AddRequest(ctx, "amy", "bob"))
	h.store.failOn("delete", "users/bob/follower_requests/amy")

	err := h.graph.RemoveRequest(ctx, "amy", models.RequestFollow, "bob", models.RequestFollower)

	require.Error(t, err)
	assert.Empty(t, h.requests(t, models.RequestFollow, "amy"))
	assert.Contains(t, h.requests(t, models.RequestFollower, "bob"), "amy")
}
