package cmap

import (
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map with string keys.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint64
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a new sharded map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a new sharded map with the specified shard count.
// shardCount must be a power of 2, otherwise DefaultShardCount is used.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint64(shardCount - 1),
	}

	for i := 0; i < shardCount; i++ {
		m.shards[i] = &shard[V]{
			items: make(map[string]V),
		}
	}

	return m
}

func (m *Map[V]) getShard(key string) *shard[V] {
	return m.shards[murmur3.Sum64([]byte(key))&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.items[key]
	return val, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, value V) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.items[key] = value
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.items, key)
}

// Pop removes a key and returns its value.
func (m *Map[V]) Pop(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	val, ok := shard.items[key]
	if ok {
		delete(shard.items, key)
	}
	return val, ok
}

// Update atomically replaces the value of key with the result of fn.
// When fn returns keep=false the key is removed instead.
func (m *Map[V]) Update(key string, fn func(old V, exists bool) (V, bool)) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	old, exists := shard.items[key]
	val, keep := fn(old, exists)
	if keep {
		shard.items[key] = val
	} else {
		delete(shard.items, key)
	}
}

// Has checks if a key exists.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Count returns the total number of items.
func (m *Map[V]) Count() int {
	count := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Clear removes all items.
func (m *Map[V]) Clear() {
	for _, shard := range m.shards {
		shard.mu.Lock()
		shard.items = make(map[string]V)
		shard.mu.Unlock()
	}
}

// Range calls fn for every item until fn returns false.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !fn(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}

// RangePrefix calls fn for every item whose key starts with prefix until
// fn returns false.
func (m *Map[V]) RangePrefix(prefix string, fn func(key string, value V) bool) {
	m.Range(func(key string, value V) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		return fn(key, value)
	})
}

// Keys returns all keys in no particular order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// ShardCount returns the number of shards.
func (m *Map[V]) ShardCount() int {
	return len(m.shards)
}

// ShardStats holds the item count of one shard.
type ShardStats struct {
	Index int
	Count int
}

// Stats returns per-shard item counts.
func (m *Map[V]) Stats() []ShardStats {
	stats := make([]ShardStats, len(m.shards))
	for i, shard := range m.shards {
		shard.mu.RLock()
		stats[i] = ShardStats{Index: i, Count: len(shard.items)}
		shard.mu.RUnlock()
	}
	return stats
}
