package command

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/yndnr/settree/internal/config"
	"github.com/yndnr/settree/internal/storage"
	"github.com/yndnr/settree/internal/storage/memory"
	"github.com/yndnr/settree/internal/storage/wal"
	"github.com/yndnr/settree/internal/telemetry/metric"
	"github.com/yndnr/settree/pkg/crypto/seal"
)

// File layout below storage.data_dir.
const (
	badgerDir    = "badger"
	boltFileName = "settings.db"
)

// OpenStore opens the store selected by cfg and registers its metrics
// with reg. The store is wrapped in a read cache when enabled.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *metric.Registry) (storage.Store, error) {
	store, err := openBackend(ctx, cfg, log, reg)
	if err != nil {
		return nil, err
	}

	if collector := storage.NewCollector(cfg.Storage.Backend, store); collector != nil {
		if err := reg.Prometheus().Register(collector); err != nil {
			store.Close()
			return nil, fmt.Errorf("register store collector: %w", err)
		}
	}

	if !cfg.Storage.Cache.Enabled {
		return store, nil
	}
	cached, err := storage.NewCachedStore(store, cfg.Storage.Cache.Size)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cached, nil
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *metric.Registry) (storage.Store, error) {
	sc := cfg.Storage

	switch sc.Backend {
	case storage.BackendMemory:
		return memory.New(), nil

	case storage.BackendLog:
		lc := storage.DefaultLogConfig(sc.DataDir)
		lc.WAL.SyncMode = wal.SyncMode(sc.Log.SyncMode)
		lc.WAL.SyncInterval = sc.Log.SyncInterval
		lc.Snapshot.RetentionCount = sc.Log.SnapshotKeep
		lc.SnapshotInterval = sc.Log.SnapshotInterval
		lc.CompactThreshold = sc.Log.CompactThreshold
		lc.Metrics = reg
		lc.Logger = log

		sealer, err := newSealer(&cfg.Security)
		if err != nil {
			return nil, err
		}
		if sealer != nil {
			lc.Sealer = sealer
		}
		return storage.OpenLog(ctx, lc)

	case storage.BackendBadger:
		bc := storage.DefaultBadgerConfig(filepath.Join(sc.DataDir, badgerDir))
		bc.GCInterval = sc.Badger.GCInterval
		bc.GCDiscardRatio = sc.Badger.GCDiscardRatio
		bc.SyncWrites = sc.Badger.SyncWrites

		store, err := storage.OpenBadger(bc, reg, log)
		if err != nil {
			return nil, err
		}
		if err := store.RegisterMetrics(reg.Prometheus()); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case storage.BackendBolt:
		bc := storage.DefaultBoltConfig(filepath.Join(sc.DataDir, boltFileName))
		bc.Timeout = sc.Bolt.Timeout
		bc.NoSync = sc.Bolt.NoSync
		return storage.OpenBolt(bc, reg, log)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

// newSealer returns the value sealer described by cfg, or nil when
// encryption is off.
func newSealer(cfg *config.SecuritySection) (*seal.Sealer, error) {
	algo := seal.Algorithm(cfg.Algorithm)

	switch {
	case cfg.EncryptionKey != "":
		key, err := seal.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("security.encryption_key: %w", err)
		}
		return seal.New(key, algo)

	case cfg.Passphrase != "":
		salt, err := hex.DecodeString(cfg.Salt)
		if err != nil {
			return nil, fmt.Errorf("security.salt: %w", err)
		}
		return seal.NewFromPassphrase([]byte(cfg.Passphrase), salt, algo)

	default:
		return nil, nil
	}
}
