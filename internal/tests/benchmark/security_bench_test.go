package benchmark

import (
	"fmt"
	"testing"

	"github.com/yndnr/settree/pkg/crypto/seal"
)

// Benchmarks for value sealing.

var algorithms = []seal.Algorithm{seal.XChaCha20Poly1305, seal.AESGCM}

func newSealer(b *testing.B, algo seal.Algorithm) *seal.Sealer {
	b.Helper()
	s, err := seal.New(newValue(32), algo)
	if err != nil {
		b.Fatalf("Failed to create sealer: %v", err)
	}
	return s
}

// BenchmarkSeal benchmarks sealing values of various sizes.
func BenchmarkSeal(b *testing.B) {
	dataSizes := []int{16, 64, 256, 1024, 4096}

	for _, algo := range algorithms {
		for _, size := range dataSizes {
			b.Run(fmt.Sprintf("%s/%s", algo, sizeLabel(size)), func(b *testing.B) {
				s := newSealer(b, algo)
				data := newValue(size)

				b.ResetTimer()
				b.ReportAllocs()
				b.SetBytes(int64(size))

				for i := 0; i < b.N; i++ {
					if _, err := s.Seal("bt/keys/psk", data); err != nil {
						b.Fatalf("Seal failed: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkOpen benchmarks opening sealed values of various sizes.
func BenchmarkOpen(b *testing.B) {
	dataSizes := []int{16, 64, 256, 1024, 4096}

	for _, algo := range algorithms {
		for _, size := range dataSizes {
			b.Run(fmt.Sprintf("%s/%s", algo, sizeLabel(size)), func(b *testing.B) {
				s := newSealer(b, algo)
				sealed, err := s.Seal("bt/keys/psk", newValue(size))
				if err != nil {
					b.Fatalf("Seal failed: %v", err)
				}

				b.ResetTimer()
				b.ReportAllocs()
				b.SetBytes(int64(size))

				for i := 0; i < b.N; i++ {
					if _, err := s.Open("bt/keys/psk", sealed); err != nil {
						b.Fatalf("Open failed: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSealParallel benchmarks concurrent seal and open round trips.
func BenchmarkSealParallel(b *testing.B) {
	s := newSealer(b, seal.XChaCha20Poly1305)
	data := newValue(256)

	b.ResetTimer()
	b.SetBytes(256)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sealed, err := s.Seal("net/ip", data)
			if err != nil {
				b.Fatalf("Seal failed: %v", err)
			}
			if _, err := s.Open("net/ip", sealed); err != nil {
				b.Fatalf("Open failed: %v", err)
			}
		}
	})
}

// BenchmarkSealerFromKey benchmarks key setup from a raw master key.
func BenchmarkSealerFromKey(b *testing.B) {
	key := newValue(32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := seal.New(key, seal.XChaCha20Poly1305); err != nil {
			b.Fatalf("New failed: %v", err)
		}
	}
}

// BenchmarkSealerFromPassphrase benchmarks the Argon2id key derivation.
func BenchmarkSealerFromPassphrase(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping key derivation benchmark in short mode")
	}

	salt, err := seal.NewSalt()
	if err != nil {
		b.Fatalf("NewSalt failed: %v", err)
	}
	passphrase := []byte("correct horse battery staple")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := seal.NewFromPassphrase(passphrase, salt, seal.XChaCha20Poly1305); err != nil {
			b.Fatalf("NewFromPassphrase failed: %v", err)
		}
	}
}

// sizeLabel returns a human-readable size label.
func sizeLabel(size int) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%dMB", size/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%dKB", size/1024)
	default:
		return fmt.Sprintf("%dB", size)
	}
}
