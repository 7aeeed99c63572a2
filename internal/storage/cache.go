package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// DefaultCacheSize is the default number of cached prefixes and lengths.
const DefaultCacheSize = 1024

type cachedEntry struct {
	key   string
	value []byte
}

// CachedStore caches enumeration results and value lengths of a Store.
//
// A write to key drops every cached prefix that key falls under, so a
// cached enumeration never misses a later write made through the cache.
// Writes made to the underlying store directly are not seen.
type CachedStore struct {
	next Store

	// mu orders cache fills against invalidations. gen is bumped by every
	// write so a read that raced with one does not store its result.
	mu  sync.Mutex
	gen uint64

	scans *lru.Cache[string, []cachedEntry]
	lens  *lru.Cache[string, int]
}

// NewCachedStore wraps next with caches holding up to size entries each.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	scans, err := lru.New[string, []cachedEntry](size)
	if err != nil {
		return nil, fmt.Errorf("storage: create scan cache: %w", err)
	}
	lens, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("storage: create len cache: %w", err)
	}
	return &CachedStore{next: next, scans: scans, lens: lens}, nil
}

// Unwrap returns the underlying store.
func (c *CachedStore) Unwrap() Store {
	return c.next
}

// Save writes through to the underlying store.
func (c *CachedStore) Save(ctx context.Context, key string, value []byte) error {
	err := c.next.Save(ctx, key, value)
	c.invalidate(key)
	return err
}

// Delete writes through to the underlying store.
func (c *CachedStore) Delete(ctx context.Context, key string) error {
	err := c.next.Delete(ctx, key)
	c.invalidate(key)
	return err
}

func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.lens.Remove(key)
	for _, p := range c.scans.Keys() {
		if strings.HasPrefix(key, p) {
			c.scans.Remove(p)
		}
	}
}

// Len returns the cached length of key, reading through on a miss.
// Absent keys are cached too.
func (c *CachedStore) Len(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	n, ok := c.lens.Get(key)
	gen := c.gen
	c.mu.Unlock()
	if ok {
		if n < 0 {
			return 0, fmt.Errorf("%w: %s", settings.ErrNotFound, key)
		}
		return n, nil
	}

	n, err := c.next.Len(ctx, key)
	switch {
	case err == nil:
		c.fillLen(gen, key, n)
	case errors.Is(err, settings.ErrNotFound):
		c.fillLen(gen, key, -1)
	}
	return n, err
}

func (c *CachedStore) fillLen(gen uint64, key string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.lens.Add(key, n)
	}
}

// Enumerate implements settings.Source from the cache when prefix was
// enumerated before.
func (c *CachedStore) Enumerate(ctx context.Context, prefix string, fn func(settings.Entry) error) error {
	c.mu.Lock()
	entries, ok := c.scans.Get(prefix)
	gen := c.gen
	c.mu.Unlock()

	if !ok {
		var collected []cachedEntry
		err := c.next.Enumerate(ctx, prefix, func(e settings.Entry) error {
			value, err := e.Value()
			if err != nil {
				return err
			}
			collected = append(collected, cachedEntry{key: e.Key, value: value})
			return nil
		})
		if err != nil {
			return err
		}
		entries = collected

		c.mu.Lock()
		if c.gen == gen {
			c.scans.Add(prefix, entries)
		}
		c.mu.Unlock()
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(settings.Entry{
			Key:  e.key,
			Len:  len(e.value),
			Read: settings.BytesReader(e.value),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Compact passes through when the underlying store supports it and drops
// the caches.
func (c *CachedStore) Compact(ctx context.Context) error {
	cp, ok := c.next.(Compacter)
	if !ok {
		return nil
	}
	err := cp.Compact(ctx)
	c.Purge()
	return err
}

// Stats passes through to the underlying store.
func (c *CachedStore) Stats() metric.StoreStats {
	if r, ok := c.next.(StatsReporter); ok {
		return r.Stats()
	}
	return metric.StoreStats{}
}

// Purge drops every cached result.
func (c *CachedStore) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.scans.Purge()
	c.lens.Purge()
}

// Close purges the caches and closes the underlying store.
func (c *CachedStore) Close() error {
	c.Purge()
	return c.next.Close()
}
