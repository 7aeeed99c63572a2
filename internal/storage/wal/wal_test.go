package wal

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// xorSealer mixes the key name into the value so that opening under a
// different name fails.
type xorSealer struct{}

func (xorSealer) Seal(name string, p []byte) ([]byte, error) {
	out := append([]byte(name+":"), p...)
	for i := range out {
		out[i] ^= 0x5a
	}
	return out, nil
}

func (xorSealer) Open(name string, c []byte) ([]byte, error) {
	out := make([]byte, len(c))
	for i := range c {
		out[i] = c[i] ^ 0x5a
	}
	prefix := []byte(name + ":")
	if !bytes.HasPrefix(out, prefix) {
		return nil, errors.New("wrong key")
	}
	return out[len(prefix):], nil
}

func syncConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.SyncMode = SyncModeSync
	return cfg
}

func readAll(t *testing.T, dir string, sealer Sealer) []*Entry {
	t.Helper()
	r, err := NewReader(dir, sealer)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	entries, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return entries
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("x")
	if cfg.Dir != "x" || cfg.SyncMode != SyncModeBatch {
		t.Fatalf("DefaultConfig = %+v", cfg)
	}
	if cfg.BatchCount != DefaultBatchCount || cfg.MaxFileSize != DefaultMaxFileSize {
		t.Fatalf("DefaultConfig limits = %d %d", cfg.BatchCount, cfg.MaxFileSize)
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Append(NewSaveEntry("ps/val1", []byte{1})); err != nil {
		t.Fatalf("Append save: %v", err)
	}
	if err := w.Append(NewDeleteEntry("ps/val1")); err != nil {
		t.Fatalf("Append delete: %v", err)
	}
	if err := w.Append(NewSaveEntry("ps/val2", []byte("two"))); err != nil {
		t.Fatalf("Append save 2: %v", err)
	}
	end := w.CurrentOffset()

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readAll(t, dir, nil)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Op != OpSave || entries[0].Key != "ps/val1" || !bytes.Equal(entries[0].Value, []byte{1}) {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Op != OpDelete || entries[1].Key != "ps/val1" || entries[1].Value != nil {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if string(entries[2].Value) != "two" {
		t.Errorf("entry 2 = %+v", entries[2])
	}

	// Seeking to the end yields nothing.
	var replayed int
	if err := Replay(dir, nil, end, func(*Entry) error { replayed++; return nil }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed != 0 {
		t.Errorf("replayed %d entries after end offset", replayed)
	}
}

func TestWriterReader_Sealed(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.Sealer = xorSealer{}

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSaveEntry("secret/key", []byte("hunter2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, formatSegmentFilename(1)))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(raw, []byte("hunter2")) {
		t.Error("plaintext value found in sealed segment")
	}

	entries := readAll(t, dir, xorSealer{})
	if len(entries) != 1 || string(entries[0].Value) != "hunter2" {
		t.Fatalf("entries = %+v", entries)
	}

	r, err := NewReader(dir, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if _, err := r.Read(); err == nil {
		t.Error("reading a sealed entry without sealer succeeded")
	}
}

func TestCodec_Rejects(t *testing.T) {
	if _, err := encodeEntryFrame(nil, nil); err == nil {
		t.Error("nil entry accepted")
	}
	if _, err := encodeEntryFrame(&Entry{Op: OpUnspecified, Key: "a"}, nil); !errors.Is(err, ErrInvalidOp) {
		t.Errorf("unspecified op error = %v", err)
	}
	if _, err := encodeEntryFrame(&Entry{Op: OpSave}, nil); err == nil {
		t.Error("empty key accepted")
	}

	frame, err := encodeEntryFrame(NewSaveEntry("a", []byte("b")), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame[len(frame)-1] ^= 0xff
	if _, err := decodeEntryFrame(frame[4:], nil); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("flipped byte error = %v, want ErrChecksumMismatch", err)
	}
	if _, err := decodeEntryFrame([]byte{1, 2}, nil); !errors.Is(err, ErrCorruptedEntry) {
		t.Errorf("short frame error = %v, want ErrCorruptedEntry", err)
	}
}

func TestWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 2

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Append(NewSaveEntry(fmt.Sprintf("k/%d", i), []byte{byte(i)})); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n, err := NewCompactor(dir).SegmentCount()
	if err != nil {
		t.Fatalf("SegmentCount: %v", err)
	}
	if n != 3 {
		t.Errorf("segments = %d, want 3", n)
	}

	entries := readAll(t, dir, nil)
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Key != fmt.Sprintf("k/%d", i) {
			t.Errorf("entry %d key = %s", i, e.Key)
		}
	}
}

func TestWriter_RotateAndSeek(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Append(NewSaveEntry("old", []byte("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	offset, err := w.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if offset != 2<<32 {
		t.Errorf("Rotate offset = %#x, want %#x", offset, uint64(2<<32))
	}
	if err := w.Append(NewSaveEntry("new", []byte("2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var keys []string
	if err := Replay(dir, nil, offset, func(e *Entry) error {
		keys = append(keys, e.Key)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(keys) != 1 || keys[0] != "new" {
		t.Errorf("replayed %v, want [new]", keys)
	}
}

func TestNewWriter_ResumesOpenSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSaveEntry("a", []byte("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Simulate a crash: stop the writer without finalizing the segment.
	w.file.Close()

	w2, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter resume: %v", err)
	}
	if w2.segmentID != 1 {
		t.Errorf("resumed segment = %d, want 1", w2.segmentID)
	}
	if err := w2.Append(NewSaveEntry("b", []byte("2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readAll(t, dir, nil)
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Key != "b" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestNewWriter_TruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(NewSaveEntry("a", []byte("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.file.Close()

	// Half a frame at the tail.
	path := filepath.Join(dir, formatSegmentFilename(1))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 40, 1, 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	w2, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter resume: %v", err)
	}
	if err := w2.Append(NewSaveEntry("b", []byte("2"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readAll(t, dir, nil)
	if len(entries) != 2 || entries[1].Key != "b" {
		t.Fatalf("entries = %+v, want a then b", entries)
	}
}

func TestNewWriter_FinalizedSegmentStartsNew(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w2.Close()
	if w2.segmentID != 2 {
		t.Errorf("segment = %d, want 2", w2.segmentID)
	}
}

func TestWriter_BatchMode(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncInterval = 10 * time.Millisecond

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	before := w.CurrentOffset()
	if err := w.Append(NewSaveEntry("a", []byte("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.CurrentOffset() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.CurrentOffset() == before {
		t.Fatal("sync loop did not flush the buffered entry")
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := NewWriter(syncConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Append(NewSaveEntry("a", nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after close = %v, want ErrClosed", err)
	}
	if _, err := w.Rotate(); !errors.Is(err, ErrClosed) {
		t.Errorf("Rotate after close = %v, want ErrClosed", err)
	}
}

func TestNewWriter_EmptyDir(t *testing.T) {
	if _, err := NewWriter(Config{}); err == nil {
		t.Error("NewWriter without dir succeeded")
	}
}

func TestReader_MissingDir(t *testing.T) {
	entries := readAll(t, filepath.Join(t.TempDir(), "missing"), nil)
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestReader_SkipsForeignSegment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, formatSegmentFilename(1)), []byte("NOTAWAL!garbage"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewWriter(syncConfig(dir))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w.segmentID != 2 {
		t.Errorf("segment = %d, want 2", w.segmentID)
	}
	if err := w.Append(NewSaveEntry("a", []byte("1"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readAll(t, dir, nil)
	if len(entries) != 1 || entries[0].Key != "a" {
		t.Errorf("entries = %+v, want only a", entries)
	}
}

func TestCompactor(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := w.Append(NewSaveEntry(fmt.Sprintf("k%d", i), []byte{1})); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	offset, err := w.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c := NewCompactor(dir, WithRetainCount(1))
	before, _ := c.SegmentCount()
	size, err := c.TotalSize()
	if err != nil || size == 0 {
		t.Fatalf("TotalSize = %d, %v", size, err)
	}
	if !c.NeedsCompaction(1) || c.NeedsCompaction(size) {
		t.Error("NeedsCompaction threshold check failed")
	}

	removed, err := c.Compact(offset)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	after, _ := c.SegmentCount()
	if removed != before-1 || after != 1 {
		t.Errorf("removed %d, %d -> %d segments", removed, before, after)
	}

	if _, err := NewCompactor(filepath.Join(dir, "missing")).Compact(offset); err != nil {
		t.Errorf("Compact on missing dir: %v", err)
	}
}

func TestCompactor_RetainCount(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1

	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Append(NewSaveEntry(fmt.Sprintf("k%d", i), []byte{1})); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	offset := w.CurrentOffset()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c := NewCompactor(dir, WithRetainCount(3))
	removed, err := c.Compact(offset)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed %d segments, want 0", removed)
	}
}
