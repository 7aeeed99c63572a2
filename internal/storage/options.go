package storage

import "time"

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the database directory.
	Dir string

	// GCInterval is the interval between value log GC runs. Zero
	// disables the background loop.
	GCInterval time.Duration

	// GCDiscardRatio is the discard ratio passed to RunValueLogGC.
	GCDiscardRatio float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// InMemory keeps the database in memory only. Used by tests.
	InMemory bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCDiscardRatio:   0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

// BoltConfig configures a BoltStore.
type BoltConfig struct {
	// Path is the database file.
	Path string

	// Timeout bounds the wait for the file lock.
	Timeout time.Duration

	// NoSync skips fsync after each commit.
	NoSync bool
}

// DefaultBoltConfig returns the default bbolt configuration.
func DefaultBoltConfig(path string) BoltConfig {
	return BoltConfig{
		Path:    path,
		Timeout: time.Second,
	}
}
