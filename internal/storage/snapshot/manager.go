package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/settree/internal/telemetry/metric"
)

var magicBytes = []byte("SETTSNAP")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	tempExtension = ".tmp"
	checksumSize  = 32
	headerVersion = 1

	compressionZstd = "zstd"

	DefaultRetentionCount = 3
)

// Errors returned by the manager.
var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
	ErrSealed           = errors.New("snapshot: sealed snapshot requires a sealer")
)

// Sealer encrypts values bound to their key name.
type Sealer interface {
	Seal(name string, plaintext []byte) ([]byte, error)
	Open(name string, ciphertext []byte) ([]byte, error)
}

type header struct {
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"created_at"`
	EntryCount  uint64 `json:"entry_count"`
	WALOffset   uint64 `json:"wal_offset"`
	Compression string `json:"compression"`
	Sealed      bool   `json:"sealed"`
}

// Entry is one live key in a snapshot.
type Entry struct {
	Key   string `json:"k"`
	Value []byte `json:"v"`
}

// Config configures the snapshot manager.
type Config struct {
	Dir string

	// RetentionCount is the number of snapshots Prune keeps.
	RetentionCount int

	Sealer  Sealer
	Metrics *metric.Registry
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
	}
}

// Manager creates, loads and prunes snapshots in one directory.
type Manager struct {
	cfg Config
}

// NewManager creates the snapshot directory if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}

	return &Manager{cfg: cfg}, nil
}

// Info describes a snapshot file.
type Info struct {
	ID string `json:"id"`

	// WALOffset is the composite WAL offset covered by the snapshot.
	WALOffset uint64 `json:"wal_offset"`

	EntryCount int64  `json:"entry_count"`
	CreatedAt  int64  `json:"created_at"`
	Size       int64  `json:"size"`
	Path       string `json:"path"`
	Checksum   string `json:"checksum"`
}

// Create writes entries as a new snapshot covering the WAL up to
// walOffset. The file appears atomically.
func (m *Manager) Create(entries []Entry, walOffset uint64) (*Info, error) {
	start := time.Now()
	id := filePrefix + ulid.Make().String()

	data, err := m.encodeEntries(entries)
	if err != nil {
		return nil, err
	}

	hdr := header{
		Version:     headerVersion,
		CreatedAt:   start.UnixMilli(),
		EntryCount:  uint64(len(entries)),
		WALOffset:   walOffset,
		Compression: compressionZstd,
		Sealed:      m.cfg.Sealer != nil,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	tempPath := filepath.Join(m.cfg.Dir, id+tempExtension)
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	sum, err := writeFile(file, hdrJSON, data)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("snapshot: close: %w", cerr)
	}
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	stat, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat: %w", err)
	}

	m.cfg.Metrics.ObserveSnapshotWriteTime(time.Since(start).Seconds())

	return &Info{
		ID:         id,
		WALOffset:  walOffset,
		EntryCount: int64(len(entries)),
		CreatedAt:  hdr.CreatedAt,
		Size:       stat.Size(),
		Path:       finalPath,
		Checksum:   hex.EncodeToString(sum),
	}, nil
}

func writeFile(file *os.File, hdrJSON, data []byte) ([]byte, error) {
	hash := sha256.New()
	w := io.MultiWriter(file, hash)

	var lenBuf [4]byte
	parts := [][]byte{magicBytes}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	parts = append(parts, append([]byte(nil), lenBuf[:]...), hdrJSON)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	parts = append(parts, append([]byte(nil), lenBuf[:]...), data)

	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return nil, fmt.Errorf("snapshot: write: %w", err)
		}
	}

	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		return nil, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	return sum, nil
}

func (m *Manager) encodeEntries(entries []Entry) ([]byte, error) {
	if m.cfg.Sealer != nil {
		sealed := make([]Entry, len(entries))
		for i, e := range entries {
			v, err := m.cfg.Sealer.Seal(e.Key, e.Value)
			if err != nil {
				return nil, fmt.Errorf("snapshot: seal %q: %w", e.Key, err)
			}
			sealed[i] = Entry{Key: e.Key, Value: v}
		}
		entries = sealed
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal entries: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}

func (m *Manager) decodeEntries(hdr header, data []byte) ([]Entry, error) {
	if hdr.Compression != compressionZstd {
		return nil, fmt.Errorf("snapshot: unsupported compression %q", hdr.Compression)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd: %w", err)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal entries: %w", err)
	}

	if !hdr.Sealed {
		return entries, nil
	}
	if m.cfg.Sealer == nil {
		return nil, ErrSealed
	}
	for i := range entries {
		v, err := m.cfg.Sealer.Open(entries[i].Key, entries[i].Value)
		if err != nil {
			return nil, fmt.Errorf("snapshot: open %q: %w", entries[i].Key, err)
		}
		entries[i].Value = v
	}
	return entries, nil
}

// Load returns the entries of the newest valid snapshot. Snapshots that
// fail their checksum are skipped.
func (m *Manager) Load() ([]Entry, *Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, nil, err
	}

	for i := len(infos) - 1; i >= 0; i-- {
		entries, info, err := m.loadFile(infos[i].Path)
		if err == nil {
			return entries, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return nil, nil, err
	}

	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string) ([]Entry, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, dataLen)); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}

	data, err := readBlock(br)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read data: %w", err)
	}

	entries, err := m.decodeEntries(hdr, data)
	if err != nil {
		return nil, nil, err
	}

	return entries, &Info{
		ID:         strings.TrimSuffix(filepath.Base(path), fileExtension),
		WALOffset:  hdr.WALOffset,
		EntryCount: int64(hdr.EntryCount),
		CreatedAt:  hdr.CreatedAt,
		Size:       stat.Size(),
		Path:       path,
		Checksum:   hex.EncodeToString(expected),
	}, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	block := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

// List returns the snapshot files oldest first. Only ID, Path and Size
// are filled in.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	infos := make([]*Info, 0, len(names))
	for _, name := range names {
		p := filepath.Join(m.cfg.Dir, name)
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:   strings.TrimSuffix(name, fileExtension),
			Path: p,
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// Prune deletes all but the newest RetentionCount snapshots and returns
// how many were removed.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}

	excess := len(infos) - m.cfg.RetentionCount
	removed := 0
	var errs []error
	for i := 0; i < excess; i++ {
		if err := os.Remove(infos[i].Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
