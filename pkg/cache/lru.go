// Package cache provides a bounded, thread-safe LRU cache with optional
// per-entry expiry. It backs the in-process storage tier.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRU evicts the least recently used entry once capacity is exceeded.
// Expired entries are dropped lazily on access.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	now      func() time.Time
	onEvict  func(key K, value V)
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithClock overrides the time source.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictCallback is invoked for entries removed by capacity pressure or expiry.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) { c.onEvict = fn }
}

// New creates an LRU holding at most capacity entries. Panics if capacity <= 0.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Set stores value under key. A ttl <= 0 keeps the entry until evicted.
func (c *LRU[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value, e.expiresAt = value, exp
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: exp})
	if c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
}

// Take returns the live value for key and removes it in the same critical section.
func (c *LRU[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.unlink(el)
	return el.Value.(*entry[K, V]).value, true
}

// Remove deletes key and reports whether a live entry was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.lookup(key)
	if ok {
		c.unlink(el)
	}
	return ok
}

// Len returns the number of stored entries, including expired ones not yet collected.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry without invoking the evict callback.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// lookup returns the element for key, dropping it first if expired.
func (c *LRU[K, V]) lookup(key K) (*list.Element, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if el.Value.(*entry[K, V]).expired(c.now()) {
		c.evict(el)
		return nil, false
	}
	return el, true
}

func (c *LRU[K, V]) unlink(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}

func (c *LRU[K, V]) evict(el *list.Element) {
	if el == nil {
		return
	}
	c.unlink(el)
	if c.onEvict != nil {
		e := el.Value.(*entry[K, V])
		c.onEvict(e.key, e.value)
	}
}
