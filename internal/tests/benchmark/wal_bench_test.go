package benchmark

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/yndnr/settree/internal/storage/wal"
)

// BenchmarkWALAppend benchmarks WAL append operations.
func BenchmarkWALAppend(b *testing.B) {
	tmpDir, err := os.MkdirTemp("", "wal-bench-*")
	if err != nil {
		b.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := wal.Config{
		Dir:         tmpDir,
		MaxFileSize: 64 * 1024 * 1024, // 64MB
		SyncMode:    wal.SyncModeBatch,
	}

	w, err := wal.NewWriter(cfg)
	if err != nil {
		b.Fatalf("Failed to create WAL writer: %v", err)
	}
	defer w.Close()

	value := newValue(64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := w.Append(wal.NewSaveEntry(newKey(i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALAppendWithSync benchmarks WAL append with sync.
func BenchmarkWALAppendWithSync(b *testing.B) {
	tmpDir, err := os.MkdirTemp("", "wal-bench-sync-*")
	if err != nil {
		b.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := wal.Config{
		Dir:         tmpDir,
		MaxFileSize: 64 * 1024 * 1024,
		SyncMode:    wal.SyncModeSync, // fsync every write
	}

	w, err := wal.NewWriter(cfg)
	if err != nil {
		b.Fatalf("Failed to create WAL writer: %v", err)
	}
	defer w.Close()

	value := newValue(64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := w.Append(wal.NewSaveEntry(newKey(i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALRecover benchmarks WAL recovery at various scales.
func BenchmarkWALRecover(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		tmpDir := b.TempDir()

		w, err := wal.NewWriter(wal.Config{
			Dir:         tmpDir,
			MaxFileSize: 64 * 1024 * 1024,
			SyncMode:    wal.SyncModeBatch,
		})
		if err != nil {
			b.Fatalf("Failed to create WAL writer: %v", err)
		}
		for i := 0; i < count; i++ {
			if err := w.Append(wal.NewSaveEntry(newKey(i), newValue(32))); err != nil {
				b.Fatalf("Append failed: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			b.StopTimer()
			reader, err := wal.NewReader(tmpDir, nil)
			if err != nil {
				b.Fatalf("Failed to create WAL reader: %v", err)
			}

			b.StartTimer()
			entries, err := reader.ReadAll()
			b.StopTimer()

			reader.Close()

			if err != nil {
				b.Fatalf("ReadAll failed: %v", err)
			}
			if len(entries) != count {
				b.Fatalf("Expected %d entries, got %d", count, len(entries))
			}
		}
	})
}

// BenchmarkWALMixedOperations benchmarks interleaved saves and deletes.
func BenchmarkWALMixedOperations(b *testing.B) {
	w, err := wal.NewWriter(wal.Config{
		Dir:         b.TempDir(),
		MaxFileSize: 64 * 1024 * 1024,
		SyncMode:    wal.SyncModeBatch,
	})
	if err != nil {
		b.Fatalf("Failed to create WAL writer: %v", err)
	}
	defer w.Close()

	value := newValue(64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		var entry *wal.Entry
		if i%3 == 2 {
			entry = wal.NewDeleteEntry(newKey(i - 1))
		} else {
			entry = wal.NewSaveEntry(newKey(i), value)
		}

		if err := w.Append(entry); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALFileRotation benchmarks WAL segment rotation.
func BenchmarkWALFileRotation(b *testing.B) {
	tmpDir := b.TempDir()

	w, err := wal.NewWriter(wal.Config{
		Dir:         tmpDir,
		MaxFileSize: 4 * 1024, // small size to trigger rotation
		SyncMode:    wal.SyncModeBatch,
	})
	if err != nil {
		b.Fatalf("Failed to create WAL writer: %v", err)
	}
	defer w.Close()

	value := newValue(128)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := w.Append(wal.NewSaveEntry(fmt.Sprintf("rot/%d", i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}

	b.StopTimer()
	files, _ := filepath.Glob(filepath.Join(tmpDir, wal.FilePrefix+"*"+wal.FileExtension))
	b.ReportMetric(float64(len(files)), "files")
}
