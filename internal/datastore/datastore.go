// Package datastore provides the hierarchical key-value store that backs
// every persisted entity. Nodes are addressed by slash-delimited paths and
// hold a flat set of string leaves.
package datastore

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Record is the set of leaves stored at one node.
type Record map[string]string

// Datastore is the storage capability consumed by the repositories.
//
// Get returns a nil Record (and no error) when nothing is stored at path.
// Update merges rec into the node at path. Delete removes the node at path,
// all of its descendants, and the leaf named by the last path segment in the
// parent node. Add stores rec under a generated child key of path and
// returns that key. Generated keys sort in creation order.
type Datastore interface {
	Get(ctx context.Context, path string) (Record, error)
	Update(ctx context.Context, path string, rec Record) error
	Delete(ctx context.Context, path string) error
	Add(ctx context.Context, path string, rec Record) (string, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func newKey() string {
	return ulid.Make().String()
}

// ErrInvalidPath is returned when a backend receives a malformed path.
var ErrInvalidPath = errors.New("datastore: invalid path")

// Path joins segments into a datastore path. A segment that is empty or
// contains a slash is a programming error.
func Path(segments ...string) string {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			panic("datastore: invalid path segment " + `"` + s + `"`)
		}
	}
	return strings.Join(segments, "/")
}

// Join appends one segment to an existing path. An invalid parent or a
// leaf that is empty or contains a slash is a programming error.
func Join(parent, leaf string) string {
	if !validPath(parent) {
		panic("datastore: invalid parent path " + `"` + parent + `"`)
	}
	return parent + "/" + Path(leaf)
}

// Split returns the parent path and the last segment. The parent is empty
// for top-level paths.
func Split(path string) (parent, leaf string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func validPath(path string) bool {
	if path == "" {
		return false
	}
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			return false
		}
	}
	return true
}
