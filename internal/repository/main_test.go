package repository

import (
	"context"
	"errors"
	"testing"

	"dropp/internal/datastore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errStoreDown = errors.New("store unavailable")

func newTestDatastore(t *testing.T) datastore.Datastore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return datastore.NewRedisStore(rdb, "test")
}

// failingStore fails every call.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (datastore.Record, error) {
	return nil, errStoreDown
}
func (failingStore) Update(context.Context, string, datastore.Record) error { return errStoreDown }
func (failingStore) Delete(context.Context, string) error                   { return errStoreDown }
func (failingStore) Add(context.Context, string, datastore.Record) (string, error) {
	return "", errStoreDown
}
