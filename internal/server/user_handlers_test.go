package server

import (
	"net/http"
	"testing"

	"dropp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMyProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUsers(t, "amy")

	res := do(t, ts.app, http.MethodGet, "/api/users/me", ts.token(t, "amy"), nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "amy", res.body["username"])
	assert.NotContains(t, res.body, "password_hash")
	assert.EqualValues(t, 0, res.body["follows_count"])
}

func TestDeleteMyAccount(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUsers(t, "amy", "bob", "cyd")
	amy, bob, cy := ts.token(t, "amy"), ts.token(t, "bob"), ts.token(t, "cyd")

	require.Equal(t, http.StatusCreated, do(t, ts.app, http.MethodPost, "/api/social/follow-requests/bob", amy, nil).status)
	require.Equal(t, http.StatusOK, do(t, ts.app, http.MethodPost, "/api/social/follower-requests/amy", bob, map[string]string{"intent": "accept"}).status)
	require.Equal(t, http.StatusCreated, do(t, ts.app, http.MethodPost, "/api/social/follow-requests/amy", cy, nil).status)

	res := do(t, ts.app, http.MethodDelete, "/api/users/me", amy, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Account deleted", res.successMessage())

	res = do(t, ts.app, http.MethodGet, "/api/users/amy", bob, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, string(models.KindResourceNotFound), res.errorType())

	assert.Empty(t, do(t, ts.app, http.MethodGet, "/api/social/followers", bob, nil).usernames())
	assert.Empty(t, do(t, ts.app, http.MethodGet, "/api/social/requests/sent", cy, nil).usernames())
}
