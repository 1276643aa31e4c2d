// Package kvstore defines the byte-oriented key/value contract the
// authentication stores are built on, with an in-process implementation and
// a key-prefixing decorator. The Redis implementation lives in pkg/redis.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("kvstore.not_found")

// Store is a minimal key/value store with expiry.
type Store interface {
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	// Take atomically reads and deletes key. Returns ErrNotFound if absent.
	Take(ctx context.Context, key string) ([]byte, error)
}
