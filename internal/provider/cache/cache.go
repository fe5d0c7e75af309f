package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketpulse/internal/clock"
)

const (
	MinTTL = time.Second
	MaxTTL = 24 * time.Hour
)

// ErrInvalidTTL is returned by New when the TTL is outside [MinTTL, MaxTTL].
var ErrInvalidTTL = errors.New("invalid cache ttl")

// Entry is a stored value with the time it was written.
type Entry struct {
	Key      string
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(e.TTL))
}

// Options configures a Cache.
type Options struct {
	TTL      time.Duration
	MaxItems int
	Clock    clock.Clock
}

// Cache is a key/value store shared by all provider clients. Entries are
// never returned past StoredAt+TTL.
type Cache struct {
	ttl      time.Duration
	maxItems int
	clock    clock.Clock

	mu    sync.RWMutex
	items map[string]Entry
	group singleflight.Group
}

// New validates opts and returns an empty Cache.
func New(opts Options) (*Cache, error) {
	if opts.TTL < MinTTL || opts.TTL > MaxTTL {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidTTL, opts.TTL, MinTTL, MaxTTL)
	}
	if opts.MaxItems < 0 {
		return nil, fmt.Errorf("cache max items must be >= 0, got %d", opts.MaxItems)
	}
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Cache{
		ttl:      opts.TTL,
		maxItems: opts.MaxItems,
		clock:    c,
		items:    make(map[string]Entry),
	}, nil
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the value for key if present and fresh. Expired entries are
// removed on access.
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock.Now()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// re-check: a concurrent Put may have refreshed it
		if cur, ok := c.items[key]; ok && cur.expired(now) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.Value, true
}

// Put stores value under key stamped with the current time.
func (c *Cache) Put(key string, value any) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = Entry{Key: key, Value: value, StoredAt: now, TTL: c.ttl}
	if c.maxItems > 0 && len(c.items) > c.maxItems {
		c.evictLocked(now)
	}
}

// evictLocked drops expired entries first, then the oldest, until the cache
// is within maxItems.
func (c *Cache) evictLocked(now time.Time) {
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
	if len(c.items) <= c.maxItems {
		return
	}
	entries := make([]Entry, 0, len(c.items))
	for _, e := range c.items {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StoredAt.Before(entries[j].StoredAt) })
	for _, e := range entries {
		if len(c.items) <= c.maxItems {
			return
		}
		delete(c.items, e.Key)
	}
}

// Sweep removes every expired entry and reports how many were dropped.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrFetch returns the cached value for key or calls fetch. Concurrent
// misses on the same key share one fetch. Only successful results are
// stored; store may veto caching a successful but partial result. A nil
// Cache always fetches.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error), store func(T) bool) (T, error) {
	if c == nil {
		return fetch(ctx)
	}
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		t, err := fetch(ctx)
		if err != nil {
			return t, err
		}
		if store == nil || store(t) {
			c.Put(key, t)
		}
		return t, nil
	})
	t, _ := v.(T)
	return t, err
}

// Key joins a provider name and request parameters into a cache key.
func Key(provider string, params ...string) string {
	if len(params) == 0 {
		return provider
	}
	return provider + "|" + strings.Join(params, ",")
}
