package config

import "time"

// Config is the root configuration of settree.
type Config struct {
	Storage  StorageSection  `koanf:"storage" json:"storage" yaml:"storage"`
	Security SecuritySection `koanf:"security" json:"security" yaml:"security"`
	Load     LoadSection     `koanf:"load" json:"load" yaml:"load"`
	Watch    WatchSection    `koanf:"watch" json:"watch" yaml:"watch"`
	Metrics  MetricsSection  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log      LogSection      `koanf:"log" json:"log" yaml:"log"`
}

// StorageSection selects and tunes the settings store.
type StorageSection struct {
	// Backend is one of memory, log, badger, bolt.
	Backend string `koanf:"backend" json:"backend" yaml:"backend"`
	DataDir string `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`

	Cache  CacheSection  `koanf:"cache" json:"cache" yaml:"cache"`
	Log    LogStore      `koanf:"log" json:"log" yaml:"log"`
	Badger BadgerSection `koanf:"badger" json:"badger" yaml:"badger"`
	Bolt   BoltSection   `koanf:"bolt" json:"bolt" yaml:"bolt"`
}

// CacheSection configures the read cache in front of the store.
type CacheSection struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Size    int  `koanf:"size" json:"size" yaml:"size"`
}

// LogStore configures the append-only log backend.
type LogStore struct {
	// SyncMode is "sync" or "batch".
	SyncMode         string        `koanf:"sync_mode" json:"sync_mode" yaml:"sync_mode"`
	SyncInterval     time.Duration `koanf:"sync_interval" json:"sync_interval" yaml:"sync_interval"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval" json:"snapshot_interval" yaml:"snapshot_interval"`
	CompactThreshold int64         `koanf:"compact_threshold" json:"compact_threshold" yaml:"compact_threshold"`
	SnapshotKeep     int           `koanf:"snapshot_keep" json:"snapshot_keep" yaml:"snapshot_keep"`
}

// BadgerSection configures the Badger backend.
type BadgerSection struct {
	GCInterval     time.Duration `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio" json:"gc_discard_ratio" yaml:"gc_discard_ratio"`
	SyncWrites     bool          `koanf:"sync_writes" json:"sync_writes" yaml:"sync_writes"`
}

// BoltSection configures the bbolt backend.
type BoltSection struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	NoSync  bool          `koanf:"no_sync" json:"no_sync" yaml:"no_sync"`
}

// SecuritySection configures at-rest encryption of values. It applies to
// the log backend only.
type SecuritySection struct {
	// EncryptionKey is a hex or base64 master key ("hex:...", "base64:...").
	EncryptionKey string `koanf:"encryption_key" json:"encryption_key" yaml:"encryption_key"`
	// Passphrase derives the key with argon2id when EncryptionKey is empty.
	Passphrase string `koanf:"passphrase" json:"passphrase" yaml:"passphrase"`
	// Salt is the hex encoded argon2id salt used with Passphrase.
	Salt string `koanf:"salt" json:"salt" yaml:"salt"`
	// Algorithm is xchacha20-poly1305 or aes-gcm.
	Algorithm string `koanf:"algorithm" json:"algorithm" yaml:"algorithm"`
}

// LoadSection tunes settings load passes.
type LoadSection struct {
	// Strict aborts a pass at the first failing entry.
	Strict bool `koanf:"strict" json:"strict" yaml:"strict"`
}

// WatchSection configures the watch command.
type WatchSection struct {
	MinInterval time.Duration `koanf:"min_interval" json:"min_interval" yaml:"min_interval"`
	// Prune deletes stored keys below the prefix that vanished from the
	// seed file.
	Prune bool `koanf:"prune" json:"prune" yaml:"prune"`
}

// MetricsSection configures the prometheus endpoint of the watch command.
type MetricsSection struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string   `koanf:"level" json:"level" yaml:"level"`
	Format    string   `koanf:"format" json:"format" yaml:"format"`
	Sensitive []string `koanf:"sensitive" json:"sensitive" yaml:"sensitive"`
}
