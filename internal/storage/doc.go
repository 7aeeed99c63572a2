// Package storage provides the persistent backends settings are loaded
// from.
//
// Every backend implements Store, which adds Save, Delete and Len to the
// enumeration a settings.Loader consumes:
//
//   - LogStore: append-only WAL segments plus zstd snapshots, with an
//     in-memory index of the live keys
//   - BadgerStore: Badger LSM tree with a background value log GC
//   - BoltStore: single-file bbolt B+tree
//   - CachedStore: LRU cache in front of any other Store
//
// Saving an empty value deletes the key on every backend, and a later
// save of a key replaces the earlier value.
package storage
