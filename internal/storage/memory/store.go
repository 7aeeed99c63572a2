package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/metric"
	"github.com/yndnr/settree/pkg/cmap"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory: store is closed")

// Store keeps settings in memory.
type Store struct {
	items  *cmap.Map[[]byte]
	bytes  atomic.Int64
	closed atomic.Bool
}

// Option configures the Store.
type Option func(*storeOptions)

type storeOptions struct {
	shards int
}

// WithShardCount sets the number of map shards (a power of two).
func WithShardCount(n int) Option {
	return func(o *storeOptions) {
		o.shards = n
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	o := storeOptions{shards: cmap.DefaultShardCount}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store{items: cmap.NewWithShards[[]byte](o.shards)}
}

// Save stores a copy of value under key. An empty value deletes the key.
func (s *Store) Save(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return fmt.Errorf("memory: empty key")
	}
	if len(value) == 0 {
		s.remove(key)
		return nil
	}

	v := append([]byte(nil), value...)
	s.items.Update(key, func(old []byte, exists bool) ([]byte, bool) {
		s.bytes.Add(int64(len(v) - len(old)))
		return v, true
	})
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.remove(key)
	return nil
}

func (s *Store) remove(key string) {
	if old, ok := s.items.Pop(key); ok {
		s.bytes.Add(-int64(len(old)))
	}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	v, ok := s.items.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", settings.ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Len returns the length of the value stored under key.
func (s *Store) Len(_ context.Context, key string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	v, ok := s.items.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", settings.ErrNotFound, key)
	}
	return len(v), nil
}

// Enumerate implements settings.Source.
//
// Matching entries are collected before fn is called, so fn may write to
// the store.
func (s *Store) Enumerate(ctx context.Context, prefix string, fn func(settings.Entry) error) error {
	if s.closed.Load() {
		return ErrClosed
	}

	type item struct {
		key   string
		value []byte
	}
	var items []item
	s.items.RangePrefix(prefix, func(key string, value []byte) bool {
		items = append(items, item{key, value})
		return true
	})

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Stored slices are never mutated in place, so sharing is safe.
		err := fn(settings.Entry{
			Key:  it.key,
			Len:  len(it.value),
			Read: settings.BytesReader(it.value),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Range calls fn for each stored key until fn returns false. value must
// not be modified or retained.
func (s *Store) Range(fn func(key string, value []byte) bool) {
	s.items.Range(fn)
}

// Count returns the number of stored keys.
func (s *Store) Count() int {
	return s.items.Count()
}

// Bytes returns the total size of the stored values.
func (s *Store) Bytes() int64 {
	return s.bytes.Load()
}

// Reset removes every key.
func (s *Store) Reset() {
	s.items.Clear()
	s.bytes.Store(0)
}

// Close marks the store closed and drops its contents.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Reset()
	return nil
}

// Stats reports the number of keys and value bytes.
func (s *Store) Stats() metric.StoreStats {
	return metric.StoreStats{Keys: s.Count(), Bytes: s.Bytes()}
}
