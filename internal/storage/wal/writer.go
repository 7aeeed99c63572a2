package wal

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/settree/internal/telemetry/metric"
)

var errInvalidMagic = errors.New("wal: invalid magic bytes")

// File format constants.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "SETTWAL\x01"
	MagicBytesSize  = 8
	ChecksumSize    = 32
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Default configuration values.
const (
	DefaultBatchCount          = 64
	DefaultBatchBytes    int64 = 256 << 10
	DefaultSyncInterval        = time.Second
	DefaultMaxFileSize   int64 = 16 << 20
	DefaultMaxEntryCount       = 100000
)

// SyncMode defines how the writer syncs to disk.
type SyncMode string

const (
	// SyncModeSync writes and fsyncs every Append before returning.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch buffers entries and flushes on size or interval.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the WAL writer.
type Config struct {
	Dir string

	SyncMode     SyncMode
	SyncInterval time.Duration

	BatchCount int
	BatchBytes int64

	MaxFileSize   int64
	MaxEntryCount int

	// Sealer, when set, encrypts saved values.
	Sealer Sealer

	// Metrics, when set, counts written bytes.
	Metrics *metric.Registry
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		SyncMode:      SyncModeBatch,
		SyncInterval:  DefaultSyncInterval,
		BatchCount:    DefaultBatchCount,
		BatchBytes:    DefaultBatchBytes,
		MaxFileSize:   DefaultMaxFileSize,
		MaxEntryCount: DefaultMaxEntryCount,
	}
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig(cfg.Dir)
	if cfg.SyncMode == "" {
		cfg.SyncMode = def.SyncMode
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = def.SyncInterval
	}
	if cfg.BatchCount <= 0 {
		cfg.BatchCount = def.BatchCount
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = def.BatchBytes
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.MaxEntryCount <= 0 {
		cfg.MaxEntryCount = def.MaxEntryCount
	}
}

// Writer appends entries to segment files.
type Writer struct {
	cfg Config

	mu sync.Mutex

	segmentID      uint64
	file           *os.File
	fileSize       int64 // excludes the checksum trailer
	segmentEntries int
	hash           hash.Hash

	buffer      [][]byte
	bufferBytes int64

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// NewWriter opens the log in cfg.Dir, continuing the latest segment if it
// was not finalized.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	applyDefaults(&cfg)

	w := &Writer{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	resumed := false
	if len(segs) > 0 {
		last := segs[len(segs)-1]
		w.segmentID = last.id
		resumed, err = w.resumeSegment(last.path)
		if err != nil {
			return nil, err
		}
	}
	if !resumed {
		w.segmentID++
		if err := w.openNewSegment(); err != nil {
			return nil, err
		}
	}

	if w.cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}

	return w, nil
}

// CurrentOffset returns the composite offset segmentID<<32 | position of
// the next write within the segment. Buffered entries are not counted.
func (w *Writer) CurrentOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (w.segmentID << 32) | uint64(uint32(w.fileSize))
}

// Append encodes entry and buffers it. In sync mode the entry is on disk
// when Append returns.
func (w *Writer) Append(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	frame, err := encodeEntryFrame(entry, w.cfg.Sealer)
	if err != nil {
		return err
	}

	w.buffer = append(w.buffer, frame)
	w.bufferBytes += int64(len(frame))

	if w.cfg.SyncMode == SyncModeSync ||
		len(w.buffer) >= w.cfg.BatchCount || w.bufferBytes >= w.cfg.BatchBytes {
		return w.flushLocked()
	}
	return nil
}

// Flush writes buffered entries to the active segment.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Rotate flushes and finalizes the active segment and opens a new one.
// Everything before the returned offset lives in finalized segments.
func (w *Writer) Rotate() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if err := w.flushLocked(); err != nil {
		return 0, err
	}
	if err := w.finalizeLocked(); err != nil {
		return 0, err
	}
	w.segmentID++
	if err := w.openNewSegment(); err != nil {
		return 0, err
	}
	return w.segmentID << 32, nil
}

func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if w.file == nil {
		return fmt.Errorf("wal: file not open")
	}

	batch := bytes.Join(w.buffer, nil)

	if w.fileSize+int64(len(batch)) > w.cfg.MaxFileSize ||
		w.segmentEntries+len(w.buffer) > w.cfg.MaxEntryCount {
		if err := w.finalizeLocked(); err != nil {
			return err
		}
		w.segmentID++
		if err := w.openNewSegment(); err != nil {
			return err
		}
	}

	if err := w.writeLocked(batch); err != nil {
		return fmt.Errorf("wal: write batch: %w", err)
	}
	w.cfg.Metrics.AddWALWriteBytes(len(batch))

	w.segmentEntries += len(w.buffer)
	w.buffer = nil
	w.bufferBytes = 0

	if w.cfg.SyncMode == SyncModeSync {
		return w.file.Sync()
	}
	return nil
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				w.mu.Lock()
				if err := w.flushLocked(); err == nil && w.file != nil {
					_ = w.file.Sync()
				}
				w.mu.Unlock()
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Writer) openNewSegment() error {
	path := filepath.Join(w.cfg.Dir, formatSegmentFilename(w.segmentID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}

	w.file = file
	w.fileSize = 0
	w.segmentEntries = 0
	w.hash = sha256.New()

	if err := w.writeLocked([]byte(MagicBytes)); err != nil {
		file.Close()
		w.file = nil
		return fmt.Errorf("wal: write magic: %w", err)
	}
	return nil
}

// resumeSegment reopens an unfinalized segment for appending. It returns
// false when the segment is finalized and a new one must be started.
func (w *Writer) resumeSegment(path string) (bool, error) {
	file, err := os.OpenFile(path, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return false, fmt.Errorf("wal: open existing segment: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return false, fmt.Errorf("wal: stat segment: %w", err)
	}

	finalized, dataLen, err := verifyChecksumTrailer(file, stat.Size())
	if err != nil && !errors.Is(err, errInvalidMagic) {
		file.Close()
		return false, err
	}
	// Finalized, foreign or torn before the magic was complete: leave it
	// for the reader to skip and start over.
	if err != nil || finalized || dataLen < MagicBytesSize {
		file.Close()
		return false, nil
	}

	// A crash can leave a torn frame at the tail. Cut it off so new
	// entries are not hidden behind it on replay.
	dataLen, err = validPrefix(file, stat.Size())
	if err != nil {
		file.Close()
		return false, err
	}
	if dataLen < stat.Size() {
		if err := file.Truncate(dataLen); err != nil {
			file.Close()
			return false, fmt.Errorf("wal: truncate torn tail: %w", err)
		}
	}

	w.hash = sha256.New()
	if _, err := io.Copy(w.hash, io.NewSectionReader(file, 0, dataLen)); err != nil {
		file.Close()
		return false, fmt.Errorf("wal: hash existing segment: %w", err)
	}
	if _, err := file.Seek(dataLen, io.SeekStart); err != nil {
		file.Close()
		return false, fmt.Errorf("wal: seek: %w", err)
	}

	w.file = file
	w.fileSize = dataLen
	return true, nil
}

func (w *Writer) writeLocked(p []byte) error {
	n, err := w.file.Write(p)
	if n > 0 {
		w.hash.Write(p[:n])
		w.fileSize += int64(n)
	}
	return err
}

func (w *Writer) finalizeLocked() error {
	if w.file == nil {
		return nil
	}

	if _, err := w.file.Write(w.hash.Sum(nil)); err != nil {
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}

	w.file = nil
	return nil
}

// Close flushes pending entries and finalizes the active segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.finalizeLocked()
}

type segmentInfo struct {
	id   uint64
	path string
}

func formatSegmentFilename(segmentID uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, segmentID, FileExtension)
}

func parseSegmentFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	var id uint64
	_, err := fmt.Sscanf(name, FilePrefix+"%d"+FileExtension, &id)
	return id, err == nil
}

// listSegments returns the segments in dir, oldest first.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		segs = append(segs, segmentInfo{id: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

// verifyChecksumTrailer reports whether the segment ends with a valid
// SHA-256 trailer, and the length of the data before it.
func verifyChecksumTrailer(f *os.File, size int64) (finalized bool, dataLen int64, err error) {
	if size < MagicBytesSize {
		return false, size, nil
	}

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, MagicBytesSize), magic); err != nil {
		return false, 0, fmt.Errorf("wal: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return false, 0, errInvalidMagic
	}

	if size < MagicBytesSize+ChecksumSize {
		return false, size, nil
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, size-ChecksumSize, ChecksumSize), trailer); err != nil {
		return false, 0, fmt.Errorf("wal: read checksum trailer: %w", err)
	}

	h := sha256.New()
	dataLen = size - ChecksumSize
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, dataLen)); err != nil {
		return false, 0, fmt.Errorf("wal: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return false, size, nil
	}
	return true, dataLen, nil
}
