package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Store provides typed access to a NATS KV bucket.
type Store struct {
	kv jetstream.KeyValue
}

// NewStore wraps a NATS KV bucket.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get retrieves a value and its revision by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

// Put stores a value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Put(ctx, key, value)
}

// Create stores a value at key only if it doesn't already exist.
// Returns jetstream.ErrKeyExists if the key already exists.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Create(ctx, key, value)
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// DeleteRevision removes a key only while it is still at revision.
// A concurrent change surfaces as jetstream.ErrKeyExists.
func (s *Store) DeleteRevision(ctx context.Context, key string, revision uint64) error {
	return s.kv.Delete(ctx, key, jetstream.LastRevision(revision))
}

// Keys returns all live keys in the bucket.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		// An empty bucket is reported as an error
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, rev, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return 0, fmt.Errorf("unmarshal key %s: %w", key, err)
	}
	return rev, nil
}

// PutJSON marshals and stores a JSON value.
func (s *Store) PutJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal key %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// CreateJSON marshals v and stores it only if key is absent.
func (s *Store) CreateJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal key %s: %w", key, err)
	}
	return s.Create(ctx, key, data)
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) bool {
	_, err := s.kv.Get(ctx, key)
	return err == nil
}

// Watch streams every current value followed by live updates for keys
// matching pattern. The returned watcher must be stopped by the caller.
func (s *Store) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	return s.kv.Watch(ctx, pattern)
}
