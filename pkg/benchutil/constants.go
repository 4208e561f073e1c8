package benchutil

import (
	"os"
	"testing"
)

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// BenchmarkSizes are record counts for quick benchmark runs.
var BenchmarkSizes = []int{1000, 10000, 100000}

// ScalingSizes are larger record counts, gated by FQSTATS_LONG_BENCH=1.
var ScalingSizes = []int{100000, 500000, 1000000, 5000000}

// SkipIfNoLongBench skips the benchmark if FQSTATS_LONG_BENCH is not set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("FQSTATS_LONG_BENCH") == "" {
		b.Skip("set FQSTATS_LONG_BENCH=1 to run scaling benchmark")
	}
}
