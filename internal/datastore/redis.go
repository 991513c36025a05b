package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dropp/internal/observability"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisStore keeps each node in a Redis hash named after its path.
type RedisStore struct {
	client    *redis.Client
	namespace string
	log       *observability.StoreLogger
}

// NewRedisStore returns a RedisStore. Keys are prefixed with "<namespace>:"
// when namespace is not empty.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		log:       observability.NewStoreLogger("redis"),
	}
}

func (s *RedisStore) key(path string) string {
	if s.namespace == "" {
		return path
	}
	return s.namespace + ":" + path
}

// Get returns the leaves at path, or nil if the node does not exist.
func (s *RedisStore) Get(ctx context.Context, path string) (rec Record, err error) {
	if !validPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	defer observability.ObserveStoreOp("redis", "get", time.Now(), &err)

	vals, err := s.client.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		s.log.LogError(ctx, err, "get", path)
		return nil, fmt.Errorf("redis hgetall %s: %w", path, err)
	}
	s.log.LogRead(ctx, path, len(vals))
	if len(vals) == 0 {
		return nil, nil
	}
	return Record(vals), nil
}

// Update merges rec into the hash at path.
func (s *RedisStore) Update(ctx context.Context, path string, rec Record) (err error) {
	if !validPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if len(rec) == 0 {
		return nil
	}
	defer observability.ObserveStoreOp("redis", "update", time.Now(), &err)

	fields := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		fields[k] = v
	}
	if err = s.client.HSet(ctx, s.key(path), fields).Err(); err != nil {
		s.log.LogError(ctx, err, "update", path)
		return fmt.Errorf("redis hset %s: %w", path, err)
	}
	s.log.LogWrite(ctx, path, len(rec))
	return nil
}

// Delete removes the node, its leaf entry in the parent, and every descendant.
func (s *RedisStore) Delete(ctx context.Context, path string) (err error) {
	if !validPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	defer observability.ObserveStoreOp("redis", "delete", time.Now(), &err)

	key := s.key(path)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if parent, leaf := Split(path); parent != "" {
		pipe.HDel(ctx, s.key(parent), leaf)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		s.log.LogError(ctx, err, "delete", path)
		return fmt.Errorf("redis delete %s: %w", path, err)
	}

	if err = s.deleteDescendants(ctx, key); err != nil {
		s.log.LogError(ctx, err, "delete", path)
		return fmt.Errorf("redis delete descendants of %s: %w", path, err)
	}
	s.log.LogDelete(ctx, path)
	return nil
}

func (s *RedisStore) deleteDescendants(ctx context.Context, key string) error {
	iter := s.client.Scan(ctx, 0, escapeGlob(key)+"/*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Add stores rec under a generated, time-ordered key below path.
func (s *RedisStore) Add(ctx context.Context, path string, rec Record) (string, error) {
	if !validPath(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	id := newKey()
	if err := s.Update(ctx, path+"/"+id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

var (
	_ Datastore = (*RedisStore)(nil)
	_ Pinger    = (*RedisStore)(nil)
)
