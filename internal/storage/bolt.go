package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

var settingsBucket = []byte("settings")

// BoltStore is a settings store kept in a single bbolt file.
type BoltStore struct {
	cfg     BoltConfig
	logger  *slog.Logger
	metrics *metric.Registry

	// mu guards db, which Compact replaces.
	mu sync.RWMutex
	db *bbolt.DB
}

// OpenBolt opens or creates the bbolt file described by cfg.
func OpenBolt(cfg BoltConfig, metrics *metric.Registry, logger *slog.Logger) (*BoltStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openBoltDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &BoltStore{
		cfg:     cfg,
		logger:  logger.With("backend", BackendBolt),
		metrics: metrics,
		db:      db,
	}
	s.logger.Info("bolt store opened", "path", cfg.Path)
	return s, nil
}

func openBoltDB(cfg BoltConfig) (*bbolt.DB, error) {
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: can't open %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: can't create settings bucket: %w", err)
	}
	return db, nil
}

// Save stores value under key. An empty value deletes the key.
func (s *BoltStore) Save(ctx context.Context, key string, value []byte) error {
	if len(value) == 0 {
		return s.Delete(ctx, key)
	}
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), value)
	})
	s.metrics.RecordStoreOp(BackendBolt, "save", err)
	if err != nil {
		return fmt.Errorf("bolt: save %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *BoltStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Delete([]byte(key))
	})
	s.metrics.RecordStoreOp(BackendBolt, "delete", err)
	if err != nil {
		return fmt.Errorf("bolt: delete %q: %w", key, err)
	}
	return nil
}

// Len returns the length of the value stored under key.
func (s *BoltStore) Len(_ context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, ErrClosed
	}

	n := -1
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(settingsBucket).Get([]byte(key)); v != nil {
			n = len(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt: len %q: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s", settings.ErrNotFound, key)
	}
	return n, nil
}

// Enumerate implements settings.Source.
//
// Matching entries are copied out of the read transaction before fn is
// called: bbolt deadlocks when a write transaction is opened while a read
// transaction of the same goroutine is still live.
func (s *BoltStore) Enumerate(ctx context.Context, prefix string, fn func(settings.Entry) error) error {
	type item struct {
		key   string
		value []byte
	}
	var items []item

	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return ErrClosed
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(settingsBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			items = append(items, item{key: string(k), value: bytes.Clone(v)})
		}
		return nil
	})
	s.mu.RUnlock()
	s.metrics.RecordStoreOp(BackendBolt, "enumerate", err)
	if err != nil {
		return fmt.Errorf("bolt: enumerate %q: %w", prefix, err)
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
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

// Compact rewrites the database into a fresh file to release free pages.
func (s *BoltStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	before := fileSize(s.cfg.Path)
	tmpPath := s.cfg.Path + ".compact"
	_ = os.Remove(tmpPath)

	dst, err := bbolt.Open(tmpPath, 0o600, &bbolt.Options{Timeout: s.cfg.Timeout, NoSync: true})
	if err != nil {
		return fmt.Errorf("bolt: can't open compaction target: %w", err)
	}
	if err := bbolt.Compact(dst, s.db, 64<<20); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bolt: compact: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bolt: sync compacted file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bolt: close compacted file: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bolt: close db: %w", err)
	}
	s.db = nil

	if err := renameFile(tmpPath, s.cfg.Path); err != nil {
		os.Remove(tmpPath)
		return s.reopen(fmt.Errorf("bolt: replace db file: %w", err))
	}

	db, err := openBoltDB(s.cfg)
	if err != nil {
		return s.reopen(fmt.Errorf("bolt: open compacted db: %w", err))
	}
	s.db = db

	s.logger.Info("bolt store compacted",
		"size_before", before,
		"size_after", fileSize(s.cfg.Path))
	return nil
}

// renameFile replaces the database file with its compacted copy.
var renameFile = os.Rename

// reopen opens the database file again after a failed compaction and
// returns cause. The store stays closed only if that fails too.
func (s *BoltStore) reopen(cause error) error {
	db, err := openBoltDB(s.cfg)
	if err != nil {
		return errors.Join(cause, err)
	}
	s.db = db
	return cause
}

// Stats reports the key count and file size.
func (s *BoltStore) Stats() metric.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats metric.StoreStats
	if s.db == nil {
		return stats
	}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		stats.Keys = tx.Bucket(settingsBucket).Stats().KeyN
		stats.Bytes = tx.Size()
		return nil
	})
	return stats
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("bolt: close db: %w", err)
	}
	return nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
