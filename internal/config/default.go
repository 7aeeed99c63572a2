package config

import "time"

// Default configuration values.
const (
	DefaultBackend = "log"
	DefaultDataDir = "./settree-data"

	DefaultCacheSize = 1024

	DefaultSyncMode         = "batch"
	DefaultSyncInterval     = 100 * time.Millisecond
	DefaultSnapshotInterval = time.Hour
	DefaultCompactThreshold = 64 << 20
	DefaultSnapshotKeep     = 3

	DefaultBadgerGCInterval = 10 * time.Minute
	DefaultBadgerGCRatio    = 0.5
	DefaultBoltTimeout      = time.Second

	DefaultAlgorithm = "xchacha20-poly1305"

	DefaultWatchInterval = 500 * time.Millisecond

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Backend: DefaultBackend,
			DataDir: DefaultDataDir,
			Cache: CacheSection{
				Size: DefaultCacheSize,
			},
			Log: LogStore{
				SyncMode:         DefaultSyncMode,
				SyncInterval:     DefaultSyncInterval,
				SnapshotInterval: DefaultSnapshotInterval,
				CompactThreshold: DefaultCompactThreshold,
				SnapshotKeep:     DefaultSnapshotKeep,
			},
			Badger: BadgerSection{
				GCInterval:     DefaultBadgerGCInterval,
				GCDiscardRatio: DefaultBadgerGCRatio,
				SyncWrites:     true,
			},
			Bolt: BoltSection{
				Timeout: DefaultBoltTimeout,
			},
		},
		Security: SecuritySection{
			Algorithm: DefaultAlgorithm,
		},
		Watch: WatchSection{
			MinInterval: DefaultWatchInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
