package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"dropp/internal/datastore"
	"dropp/internal/featureflags"
	"dropp/internal/lock"
	"dropp/internal/models"
	"dropp/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected store failure")

// faultyStore wraps a datastore, records every call as "op path", fails
// the calls registered with failOn, and runs the hooks registered with onCall.
type faultyStore struct {
	datastore.Datastore

	mu     sync.Mutex
	faults map[string]error
	hooks  map[string]func()
	calls  []string
}

// onCall runs fn once, before the first matching call reaches the store.
func (f *faultyStore) onCall(op, path string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks == nil {
		f.hooks = make(map[string]func())
	}
	f.hooks[op+" "+path] = fn
}

func (f *faultyStore) failOn(op, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults == nil {
		f.faults = make(map[string]error)
	}
	f.faults[op+" "+path] = errInjected
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
}

func (f *faultyStore) record(op, path string) error {
	key := op + " " + path
	f.mu.Lock()
	f.calls = append(f.calls, key)
	err := f.faults[key]
	hook := f.hooks[key]
	delete(f.hooks, key)
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *faultyStore) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// writes returns the recorded update and delete calls.
func (f *faultyStore) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "update ") || strings.HasPrefix(c, "delete ") {
			out = append(out, c)
		}
	}
	return out
}

func (f *faultyStore) Get(ctx context.Context, path string) (datastore.Record, error) {
	if err := f.record("get", path); err != nil {
		return nil, err
	}
	return f.Datastore.Get(ctx, path)
}

func (f *faultyStore) Update(ctx context.Context, path string, rec datastore.Record) error {
	if err := f.record("update", path); err != nil {
		return err
	}
	return f.Datastore.Update(ctx, path, rec)
}

func (f *faultyStore) Delete(ctx context.Context, path string) error {
	if err := f.record("delete", path); err != nil {
		return err
	}
	return f.Datastore.Delete(ctx, path)
}

func (f *faultyStore) Add(ctx context.Context, path string, rec datastore.Record) (string, error) {
	if err := f.record("add", path); err != nil {
		return "", err
	}
	return f.Datastore.Add(ctx, path, rec)
}

type harness struct {
	mr       *miniredis.Miniredis
	store    *faultyStore
	conns    repository.ConnectionStore
	users    repository.UserRepository
	graph    *SocialGraphService
	follows  *FollowService
	accounts *AccountService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	flags  *featureflags.Manager
	locker lock.PairLocker
}

func withFlags(raw string) harnessOption {
	return func(c *harnessConfig) { c.flags = featureflags.NewManager(raw) }
}

func withLocker(l lock.PairLocker) harnessOption {
	return func(c *harnessConfig) { c.locker = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{locker: lock.NewLocalLocker(2 * time.Second)}
	for _, opt := range opts {
		opt(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &faultyStore{Datastore: datastore.NewRedisStore(rdb, "test")}
	conns := repository.NewConnectionStore(store)
	users := repository.NewUserRepository(store)
	reporter := NewInconsistencyReporter(store)
	graph := NewSocialGraphService(conns, reporter, cfg.flags)

	return &harness{
		mr:       mr,
		store:    store,
		conns:    conns,
		users:    users,
		graph:    graph,
		follows:  NewFollowService(graph, conns, users, cfg.locker, reporter),
		accounts: NewAccountService(users, conns, cfg.locker, reporter),
	}
}

// seedUsers writes bare profile records, skipping password hashing.
func (h *harness) seedUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, h.users.Create(context.Background(), &models.User{
			Username:  name,
			CreatedAt: time.Now(),
		}))
	}
	h.store.resetCalls()
}

// ledger returns the operations recorded in the inconsistency ledger.
func (h *harness) ledger() []string {
	var ops []string
	for _, key := range h.mr.Keys() {
		if !strings.HasPrefix(key, "test:"+InconsistencyLedgerPath+"/") {
			continue
		}
		ops = append(ops, h.mr.HGet(key, "operation"))
	}
	sort.Strings(ops)
	return ops
}

func (h *harness) connections(t *testing.T, username string, kind models.ConnectionKind) map[string]string {
	t.Helper()
	set, err := h.conns.GetConnections(context.Background(), username, kind)
	require.NoError(t, err)
	return set
}

func (h *harness) requests(t *testing.T, kind models.RequestKind, username string) map[string]string {
	t.Helper()
	set, err := h.conns.GetRequests(context.Background(), kind, username)
	require.NoError(t, err)
	return set
}

// busyLocker never grants a lock.
type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, string) (lock.Release, error) {
	return nil, lock.ErrBusy
}
