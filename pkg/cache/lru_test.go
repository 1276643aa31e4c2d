package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/authflow/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("set and get", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](2)
		c.Set("a", 1, 0)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)

		c.Set("a", 2, 0)
		v, _ = c.Get("a")
		assert.Equal(t, 2, v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		var evicted []string
		c := cache.New(2, cache.WithEvictCallback(func(k string, _ int) { evicted = append(evicted, k) }))
		c.Set("a", 1, 0)
		c.Set("b", 2, 0)
		c.Get("a")
		c.Set("c", 3, 0)

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, evicted)
	})

	t.Run("entries expire", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{now: time.Unix(1000, 0)}
		c := cache.New(4, cache.WithClock[string, int](clock.Now))
		c.Set("a", 1, time.Minute)
		c.Set("b", 2, 0)

		clock.Advance(59 * time.Second)
		_, ok := c.Get("a")
		assert.True(t, ok)

		clock.Advance(time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok)
		_, ok = c.Get("b")
		assert.True(t, ok)
	})

	t.Run("take removes", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](2)
		c.Set("a", 1, 0)
		v, ok := c.Take("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		_, ok = c.Take("a")
		assert.False(t, ok)
	})

	t.Run("remove and clear", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](2)
		c.Set("a", 1, 0)
		c.Set("b", 1, 0)
		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))
		c.Clear()
		assert.Zero(t, c.Len())
	})

	t.Run("panics on bad capacity", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.New[string, int](0) })
	})
}

func TestLRU_ConcurrentTake(t *testing.T) {
	t.Parallel()

	c := cache.New[string, int](1)
	c.Set("k", 1, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Take("k"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
