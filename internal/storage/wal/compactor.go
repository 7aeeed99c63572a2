package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is the default number of segments kept by Compact.
const DefaultRetainCount = 2

// Compactor removes segments already covered by a snapshot.
type Compactor struct {
	dir         string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the minimum number of segments to keep.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a compactor for the segments in dir.
func NewCompactor(dir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		dir:         dir,
		retainCount: DefaultRetainCount,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compact removes segments that lie entirely before offset, keeping at
// least retainCount segments. It returns the number of removed segments.
func (c *Compactor) Compact(offset uint64) (int, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}

	covered := 0
	for covered < len(segs) && segs[covered].id < offset>>32 {
		covered++
	}
	if keep := len(segs) - covered; keep < c.retainCount {
		covered -= c.retainCount - keep
		if covered < 0 {
			covered = 0
		}
	}

	var errs []error
	removed := 0
	for _, seg := range segs[:covered] {
		if err := os.Remove(seg.path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", seg.path, err))
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d segments: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}

// NeedsCompaction reports whether the segments take more than threshold
// bytes on disk.
func (c *Compactor) NeedsCompaction(threshold int64) bool {
	total, err := c.TotalSize()
	return err == nil && total > threshold
}

// TotalSize returns the size of all segments in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, seg := range segs {
		info, err := os.Stat(seg.path)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// SegmentCount returns the number of segments.
func (c *Compactor) SegmentCount() (int, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}
	return len(segs), nil
}
