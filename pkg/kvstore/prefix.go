package kvstore

import (
	"context"
	"time"
)

type prefixed struct {
	next   Store
	prefix string
}

// WithPrefix namespaces every key of next with prefix.
func WithPrefix(next Store, prefix string) Store {
	if prefix == "" {
		return next
	}
	return &prefixed{next: next, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return p.next.Set(ctx, p.prefix+key, val, ttl)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Take(ctx context.Context, key string) ([]byte, error) {
	return p.next.Take(ctx, p.prefix+key)
}
