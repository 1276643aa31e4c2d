package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/authflow/pkg/kvstore"
)

// Storage adapts a go-redis client to kvstore.Store.
type Storage struct {
	db redis.UniversalClient
}

var _ kvstore.Store = (*Storage)(nil)

// NewStorage wraps client.
func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{db: client}
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	val, err := s.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return val, nil
}

// Set stores val under key. A ttl <= 0 keeps the key without expiry.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.db.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Take uses GETDEL so concurrent callers cannot both observe the value.
func (s *Storage) Take(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	val, err := s.db.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take %q: %w", key, err)
	}
	return val, nil
}
