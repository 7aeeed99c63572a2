package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// BadgerStore is a settings store backed by Badger v3.
//
// Badger keeps a single version per key, so a later Save replaces the
// earlier value and Delete removes it.
type BadgerStore struct {
	db      *badger.DB
	cfg     BadgerConfig
	logger  *slog.Logger
	metrics *metric.Registry

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64
	closed     atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens the Badger database described by cfg.
func OpenBadger(cfg BadgerConfig, metrics *metric.Registry, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", BackendBadger)

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = 0.5
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop()
	} else {
		close(s.doneCh)
	}

	logger.Info("badger store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

// Save stores value under key. An empty value deletes the key.
func (s *BadgerStore) Save(ctx context.Context, key string, value []byte) error {
	if len(value) == 0 {
		return s.Delete(ctx, key)
	}
	if key == "" {
		return ErrEmptyKey
	}
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), append([]byte(nil), value...))
	})
	s.metrics.RecordStoreOp(BackendBadger, "save", err)
	if err != nil {
		return fmt.Errorf("badger: save %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	s.metrics.RecordStoreOp(BackendBadger, "delete", err)
	if err != nil {
		return fmt.Errorf("badger: delete %q: %w", key, err)
	}
	return nil
}

// Len returns the length of the value stored under key.
func (s *BadgerStore) Len(_ context.Context, key string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		n = int(item.ValueSize())
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, fmt.Errorf("%w: %s", settings.ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("badger: len %q: %w", key, err)
	}
	return n, nil
}

// Enumerate implements settings.Source.
//
// Entries are read in one transaction and handed to fn after it ends, so
// fn may write to the store.
func (s *BadgerStore) Enumerate(ctx context.Context, prefix string, fn func(settings.Entry) error) error {
	if s.closed.Load() {
		return ErrClosed
	}

	type item struct {
		key   string
		value []byte
	}
	var items []item

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry := it.Item()
			value, err := entry.ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, item{key: string(entry.Key()), value: value})
		}
		return nil
	})
	s.metrics.RecordStoreOp(BackendBadger, "enumerate", err)
	if err != nil {
		return fmt.Errorf("badger: enumerate %q: %w", prefix, err)
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

// Compact flattens the LSM tree and runs value log GC until nothing is
// left to rewrite.
func (s *BadgerStore) Compact(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.Flatten(1); err != nil {
		return fmt.Errorf("badger: flatten: %w", err)
	}
	if s.cfg.InMemory {
		return nil
	}
	return s.gc(ctx)
}

func (s *BadgerStore) gc(ctx context.Context) error {
	start := time.Now()
	runs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("badger: value log gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRuns.Add(uint64(runs))
	s.logger.Debug("value log gc completed",
		"rewrites", runs,
		"elapsed", time.Since(start))
	return nil
}

// Stats reports the key count and on-disk size.
func (s *BadgerStore) Stats() metric.StoreStats {
	var stats metric.StoreStats
	if s.closed.Load() {
		return stats
	}
	lsm, vlog := s.db.Size()
	stats.Bytes = lsm + vlog

	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Keys++
		}
		return nil
	})
	return stats
}

// RegisterMetrics registers gauges describing the Badger files with reg.
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) error {
	lsm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	}, func() float64 {
		l, _ := s.db.Size()
		return float64(l)
	})
	vlog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	}, func() float64 {
		_, v := s.db.Size()
		return float64(v)
	})
	lastGC := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC",
	}, func() float64 {
		return float64(s.lastGCTime.Load()) / 1000
	})

	for _, c := range []prometheus.Collector{lsm, vlog, lastGC} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}
	return nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	s.logger.Info("badger store closed")
	return nil
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.gc(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
