// Package repository provides typed access to the records kept in the datastore.
package repository

import (
	"context"
	"fmt"

	"dropp/internal/datastore"
	"dropp/internal/models"
)

const usersRoot = "users"

// ConnectionStore reads and writes the four per-user relationship collections.
// A kind outside its enumerated domain is a programming error and panics.
type ConnectionStore interface {
	GetConnections(ctx context.Context, username string, kind models.ConnectionKind) (map[string]string, error)
	GetRequests(ctx context.Context, kind models.RequestKind, username string) (map[string]string, error)
	PutConnection(ctx context.Context, owner string, kind models.ConnectionKind, other string) error
	DeleteConnection(ctx context.Context, owner string, kind models.ConnectionKind, other string) error
	PutRequest(ctx context.Context, kind models.RequestKind, owner, other string) error
	DeleteRequest(ctx context.Context, kind models.RequestKind, owner, other string) error
}

// connectionStore implements ConnectionStore
type connectionStore struct {
	ds datastore.Datastore
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(ds datastore.Datastore) ConnectionStore {
	return &connectionStore{ds: ds}
}

// ConnectionPath returns the path of a user's follows or followers collection.
func ConnectionPath(username string, kind models.ConnectionKind) string {
	if !kind.Valid() {
		panic(fmt.Sprintf("repository: invalid connection kind %q", kind))
	}
	return datastore.Path(usersRoot, username, string(kind))
}

// RequestPath returns the path of a user's follow_requests or follower_requests collection.
func RequestPath(username string, kind models.RequestKind) string {
	if !kind.Valid() {
		panic(fmt.Sprintf("repository: invalid request kind %q", kind))
	}
	return datastore.Path(usersRoot, username, kind.Collection())
}

func (r *connectionStore) GetConnections(ctx context.Context, username string, kind models.ConnectionKind) (map[string]string, error) {
	return r.read(ctx, ConnectionPath(username, kind))
}

func (r *connectionStore) GetRequests(ctx context.Context, kind models.RequestKind, username string) (map[string]string, error) {
	return r.read(ctx, RequestPath(username, kind))
}

func (r *connectionStore) PutConnection(ctx context.Context, owner string, kind models.ConnectionKind, other string) error {
	return r.put(ctx, ConnectionPath(owner, kind), other)
}

func (r *connectionStore) DeleteConnection(ctx context.Context, owner string, kind models.ConnectionKind, other string) error {
	return r.delete(ctx, datastore.Join(ConnectionPath(owner, kind), other))
}

func (r *connectionStore) PutRequest(ctx context.Context, kind models.RequestKind, owner, other string) error {
	return r.put(ctx, RequestPath(owner, kind), other)
}

func (r *connectionStore) DeleteRequest(ctx context.Context, kind models.RequestKind, owner, other string) error {
	return r.delete(ctx, datastore.Join(RequestPath(owner, kind), other))
}

func (r *connectionStore) read(ctx context.Context, path string) (map[string]string, error) {
	rec, err := r.ds.Get(ctx, path)
	if err != nil {
		return nil, models.NewStoreError("get", path, err)
	}
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (r *connectionStore) put(ctx context.Context, path, other string) error {
	if err := r.ds.Update(ctx, path, datastore.Record{other: other}); err != nil {
		return models.NewStoreError("update", path, err)
	}
	return nil
}

func (r *connectionStore) delete(ctx context.Context, path string) error {
	if err := r.ds.Delete(ctx, path); err != nil {
		return models.NewStoreError("delete", path, err)
	}
	return nil
}
