// Package benchmark provides performance benchmarks for settree.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run the load benchmarks only:
//
//	go test -bench=BenchmarkLoad -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Generate performance report:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee benchmark.txt
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
