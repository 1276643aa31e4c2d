package kvstore

import (
	"context"
	"time"

	"github.com/dmitrymomot/authflow/pkg/cache"
)

// DefaultMemoryCapacity bounds the in-process store.
const DefaultMemoryCapacity = 10_000

// Memory is an in-process Store backed by a TTL-aware LRU. Values are copied
// on the way in and out.
type Memory struct {
	lru *cache.LRU[string, []byte]
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store holding at most capacity keys. A capacity
// <= 0 uses DefaultMemoryCapacity. now overrides the clock when non-nil.
func NewMemory(capacity int, now func() time.Time) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{lru: cache.New(capacity, cache.WithClock[string, []byte](now))}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.lru.Set(key, clone(val), ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Take(_ context.Context, key string) ([]byte, error) {
	v, ok := m.lru.Take(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
