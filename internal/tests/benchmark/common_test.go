package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"runtime"
	"testing"

	"github.com/yndnr/settree/internal/storage"
)

// KeyCounts defines the stored key counts for benchmarking.
var KeyCounts = []int{1000, 10000, 50000, 100000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{1000, 5000, 10000}

// subsystems spreads keys over a few top-level handlers.
var subsystems = []string{"bt", "net", "log", "fs", "dev"}

// newKey returns the i-th benchmark key, e.g. "net/7/addr".
func newKey(i int) string {
	return fmt.Sprintf("%s/%d/addr", subsystems[i%len(subsystems)], i)
}

// newValue returns n random bytes.
func newValue(n int) []byte {
	v := make([]byte, n)
	_, _ = rand.Read(v)
	return v
}

// prefillStore saves count keys with 32 byte values into store.
func prefillStore(ctx context.Context, b *testing.B, store storage.Store, count int) {
	b.Helper()
	for i := 0; i < count; i++ {
		if err := store.Save(ctx, newKey(i), newValue(32)); err != nil {
			b.Fatalf("prefill %d: %v", i, err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function with various key counts.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
