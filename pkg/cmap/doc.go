// Package cmap provides a concurrent map keyed by setting names.
//
// Keys are spread over a power-of-two number of shards using murmur3, each
// shard guarded by its own RWMutex:
//
//	m := cmap.New[[]byte]()
//	m.Set("net/mtu", []byte("1500"))
//	val, ok := m.Get("net/mtu")
//
// Read operations (Get, Has, Range, RangePrefix) take shard read locks,
// writes (Set, Delete, Pop, Update) take shard write locks. Iteration
// locks one shard at a time, so it does not observe a single consistent
// snapshot of the whole map.
package cmap
