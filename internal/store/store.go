package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is a small JSON document store with per-key TTL. Device sessions and
// board snapshots live here so the service survives restarts.
type Store interface {
	// Get unmarshals the value at key into out.
	Get(ctx context.Context, key string, out any) error
	// Set marshals v and stores it at key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close releases underlying resources.
	Close() error
}
