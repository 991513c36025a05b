package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"dropp/internal/config"
	"dropp/internal/datastore"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testServer struct {
	srv *Server
	app *fiber.App
	mr  *miniredis.Miniredis
	svc *Services
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          testSecret,
		Env:                "test",
		DatastoreDriver:    config.DriverRedis,
		DatastoreNamespace: "test",
		AllowedOrigins:     "http://localhost:8081",
		PairLockTTL:        5 * time.Second,
		PairLockWait:       time.Second,
		FollowRequestLimit: 20,
		FollowRequestWin:   time.Minute,
		FeatureFlags:       "symmetric_compensation=on",
	}
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	deps := &Deps{Store: datastore.NewRedisStore(rdb, cfg.DatastoreNamespace), Redis: rdb}
	srv := NewServerWithDeps(cfg, deps)

	app := srv.NewApp()
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	return &testServer{srv: srv, app: app, mr: mr, svc: NewServices(cfg, deps)}
}

func (ts *testServer) seedUsers(t *testing.T, usernames ...string) {
	t.Helper()
	for _, u := range usernames {
		_, err := ts.svc.Accounts.CreateUser(context.Background(), u, "", "password123")
		require.NoError(t, err)
	}
}

func (ts *testServer) token(t *testing.T, username string) string {
	t.Helper()
	tok, err := ts.srv.tokens.Issue(username)
	require.NoError(t, err)
	return tok
}

type response struct {
	status int
	body   map[string]any
}

func (r response) errorType() string {
	e, _ := r.body["error"].(map[string]any)
	s, _ := e["type"].(string)
	return s
}

func (r response) errorMessage() string {
	e, _ := r.body["error"].(map[string]any)
	s, _ := e["message"].(string)
	return s
}

func (r response) successMessage() string {
	e, _ := r.body["success"].(map[string]any)
	s, _ := e["message"].(string)
	return s
}

func (r response) usernames() []string {
	raw, _ := r.body["usernames"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(string))
	}
	return out
}

func do(t *testing.T, app *fiber.App, method, path, token string, body any) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

