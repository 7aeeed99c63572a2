package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/storage/memory"
	"github.com/yndnr/settree/internal/storage/snapshot"
	"github.com/yndnr/settree/internal/storage/wal"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// Default layout and intervals of a LogStore.
const (
	DefaultWALDir           = "wal"
	DefaultSnapshotDir      = "snapshots"
	DefaultSnapshotInterval = time.Hour
	DefaultCompactThreshold = 64 << 20
)

// LogConfig configures a LogStore.
type LogConfig struct {
	// Dir is the base directory holding the WAL and snapshot directories.
	Dir string

	WAL      wal.Config
	Snapshot snapshot.Config

	// SnapshotInterval is the period of the background snapshot check.
	// Zero disables the background loop.
	SnapshotInterval time.Duration

	// CompactThreshold is the WAL size in bytes above which the
	// background loop takes a snapshot. Zero snapshots on every tick.
	CompactThreshold int64

	// Sealer, when set, encrypts values in the WAL and in snapshots.
	Sealer wal.Sealer

	Metrics *metric.Registry
	Logger  *slog.Logger
}

// DefaultLogConfig returns the default configuration rooted at dir.
func DefaultLogConfig(dir string) LogConfig {
	return LogConfig{
		Dir:              dir,
		WAL:              wal.DefaultConfig(filepath.Join(dir, DefaultWALDir)),
		Snapshot:         snapshot.DefaultConfig(filepath.Join(dir, DefaultSnapshotDir)),
		SnapshotInterval: DefaultSnapshotInterval,
		CompactThreshold: DefaultCompactThreshold,
	}
}

// LogStore is an append-only settings store.
//
// Every Save and Delete is appended to the WAL before the in-memory
// index of live keys is updated. Snapshots of the index bound the WAL
// replayed on open.
type LogStore struct {
	cfg LogConfig

	// mu orders WAL appends with index updates and excludes writers
	// while a snapshot is cut.
	mu sync.Mutex

	index     *memory.Store
	wal       *wal.Writer
	snapshots *snapshot.Manager
	compactor *wal.Compactor

	logger *slog.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// OpenLog opens the log store in cfg.Dir and recovers its contents.
func OpenLog(ctx context.Context, cfg LogConfig) (*LogStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage: log dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.Dir, DefaultWALDir)
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.Dir, DefaultSnapshotDir)
	}

	cfg.WAL.Sealer = cfg.Sealer
	cfg.WAL.Metrics = cfg.Metrics
	cfg.Snapshot.Sealer = cfg.Sealer
	cfg.Snapshot.Metrics = cfg.Metrics

	snapMgr, err := snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	writer, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}

	s := &LogStore{
		cfg:       cfg,
		index:     memory.New(),
		wal:       writer,
		snapshots: snapMgr,
		compactor: wal.NewCompactor(cfg.WAL.Dir),
		logger:    cfg.Logger.With("backend", BackendLog),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if err := s.recover(ctx); err != nil {
		writer.Close()
		return nil, err
	}

	if cfg.SnapshotInterval > 0 {
		go s.backgroundLoop()
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// recover loads the newest snapshot and replays the WAL written after it.
func (s *LogStore) recover(ctx context.Context) error {
	start := time.Now()

	entries, info, err := s.snapshots.Load()
	if err != nil && !errors.Is(err, snapshot.ErrNoSnapshots) {
		return fmt.Errorf("storage: load snapshot: %w", err)
	}

	var offset uint64
	if info != nil {
		for _, e := range entries {
			if err := s.index.Save(ctx, e.Key, e.Value); err != nil {
				return fmt.Errorf("storage: restore %q: %w", e.Key, err)
			}
		}
		offset = info.WALOffset
		s.logger.Info("snapshot loaded",
			"id", info.ID,
			"entries", info.EntryCount,
			"wal_offset", offset)
	}

	applied := 0
	err = wal.Replay(s.cfg.WAL.Dir, s.cfg.Sealer, offset, func(e *wal.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		applied++
		switch e.Op {
		case wal.OpSave:
			return s.index.Save(ctx, e.Key, e.Value)
		default:
			return s.index.Delete(ctx, e.Key)
		}
	})
	if err != nil {
		return fmt.Errorf("storage: replay wal: %w", err)
	}

	s.logger.Info("log store recovered",
		"keys", s.index.Count(),
		"wal_entries", applied,
		"elapsed", time.Since(start))
	return nil
}

// Save appends value for key. An empty value deletes the key.
func (s *LogStore) Save(ctx context.Context, key string, value []byte) error {
	if len(value) == 0 {
		return s.Delete(ctx, key)
	}
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.wal.Append(wal.NewSaveEntry(key, value))
	if err == nil {
		err = s.index.Save(ctx, key, value)
	}
	s.cfg.Metrics.RecordStoreOp(BackendLog, "save", err)
	if err != nil {
		return fmt.Errorf("storage: save %q: %w", key, err)
	}
	return nil
}

// Delete appends a delete record when key is present.
func (s *LogStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.Len(ctx, key); err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil
		}
		return err
	}

	err := s.wal.Append(wal.NewDeleteEntry(key))
	if err == nil {
		err = s.index.Delete(ctx, key)
	}
	s.cfg.Metrics.RecordStoreOp(BackendLog, "delete", err)
	if err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// Len returns the length of the live value of key.
func (s *LogStore) Len(ctx context.Context, key string) (int, error) {
	return s.index.Len(ctx, key)
}

// Enumerate implements settings.Source over the live keys.
func (s *LogStore) Enumerate(ctx context.Context, prefix string, fn func(settings.Entry) error) error {
	return s.index.Enumerate(ctx, prefix, fn)
}

// Stats reports the live key count and value bytes.
func (s *LogStore) Stats() metric.StoreStats {
	return s.index.Stats()
}

// Snapshot writes the live keys to a new snapshot and drops the WAL
// segments it covers.
func (s *LogStore) Snapshot(ctx context.Context) (*snapshot.Info, error) {
	s.mu.Lock()
	offset, err := s.wal.Rotate()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("storage: rotate wal: %w", err)
	}
	entries := make([]snapshot.Entry, 0, s.index.Count())
	s.index.Range(func(key string, value []byte) bool {
		entries = append(entries, snapshot.Entry{Key: key, Value: value})
		return true
	})
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.snapshots.Create(entries, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: create snapshot: %w", err)
	}

	s.logger.Info("snapshot created",
		"id", info.ID,
		"entries", info.EntryCount,
		"wal_offset", info.WALOffset,
		"size_bytes", info.Size)

	if _, err := s.snapshots.Prune(); err != nil {
		s.logger.Warn("snapshot prune failed", "error", err)
	}
	if _, err := s.compactor.Compact(info.WALOffset); err != nil {
		s.logger.Warn("wal compaction failed", "error", err)
	}

	return info, nil
}

// Compact implements Compacter.
func (s *LogStore) Compact(ctx context.Context) error {
	_, err := s.Snapshot(ctx)
	return err
}

func (s *LogStore) backgroundLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.cfg.CompactThreshold > 0 && !s.compactor.NeedsCompaction(s.cfg.CompactThreshold) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := s.Snapshot(ctx); err != nil {
				s.logger.Error("auto snapshot failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// Close stops the background loop and finalizes the WAL.
func (s *LogStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh

		s.mu.Lock()
		defer s.mu.Unlock()

		if err = s.wal.Close(); err != nil {
			s.logger.Error("close wal failed", "error", err)
		}
		s.index.Close()
	})
	return err
}
