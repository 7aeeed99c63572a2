package storage

import (
	"context"
	"errors"

	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendLog    = "log"
	BackendBadger = "badger"
	BackendBolt   = "bolt"
)

// Errors shared by the backends.
var (
	ErrKeyNotFound = settings.ErrNotFound
	ErrClosed      = errors.New("storage: store closed")
	ErrEmptyKey    = errors.New("storage: empty key")
)

// Store is a settings backend.
type Store interface {
	settings.Source
	settings.Saver

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Len returns the length of the value stored under key, or an error
	// wrapping ErrKeyNotFound.
	Len(ctx context.Context, key string) (int, error)

	Close() error
}

// Compacter is implemented by stores that can reclaim space on demand.
type Compacter interface {
	Compact(ctx context.Context) error
}

// StatsReporter is implemented by stores that can report their size.
type StatsReporter interface {
	Stats() metric.StoreStats
}

// NewCollector returns a prometheus collector for the size of s, or nil
// when s cannot report it.
func NewCollector(backend string, s Store) *metric.Collector {
	r, ok := s.(StatsReporter)
	if !ok {
		return nil
	}
	return metric.NewCollector(backend, r.Stats)
}
