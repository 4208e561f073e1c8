// Package benchutil generates deterministic synthetic FASTQ data for tests and
// benchmarks, along with the statistics a correct pass must report for it.
package benchutil

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
)

// GeneratorConfig configures synthetic FASTQ generation.
type GeneratorConfig struct {
	// NumRecords is the number of records to generate.
	NumRecords int
	// MinLength and MaxLength bound read lengths (inclusive).
	MinLength int
	MaxLength int
	// GCFraction is the probability that a base is G or C.
	GCFraction float64
	// NFraction is the probability that a base is N.
	NFraction float64
	// QualityOffset is the Phred encoding offset. Default 33.
	QualityOffset int
	// MaxQuality is the highest Phred score emitted. Default 41.
	MaxQuality int
	// RepeatHeader copies the header onto the "+" line.
	RepeatHeader bool
	// Seed for reproducible generation. 0 = BenchmarkSeed.
	Seed int64
}

// DefaultConfig returns short-read style data: 100-150bp, ~45% GC, rare Ns.
func DefaultConfig(numRecords int) GeneratorConfig {
	return GeneratorConfig{
		NumRecords:    numRecords,
		MinLength:     100,
		MaxLength:     150,
		GCFraction:    0.45,
		NFraction:     0.002,
		QualityOffset: 33,
		MaxQuality:    41,
		Seed:          BenchmarkSeed,
	}
}

// LongReadConfig returns long-read style data with widely varying lengths.
func LongReadConfig(numRecords int) GeneratorConfig {
	cfg := DefaultConfig(numRecords)
	cfg.MinLength = 500
	cfg.MaxLength = 20000
	cfg.MaxQuality = 30
	return cfg
}

// Expected holds the statistics a correct pass must produce for the
// generated data.
type Expected struct {
	Records int64
	Bases   int64
	GC      int64
	Lengths map[int]int64
	// Samples[i] is the number of reads longer than i.
	Samples []int64
}

// Generator writes synthetic FASTQ text.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a new data generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = BenchmarkSeed
	}
	if cfg.QualityOffset == 0 {
		cfg.QualityOffset = 33
	}
	if cfg.MaxQuality == 0 {
		cfg.MaxQuality = 41
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1
	}
	if cfg.MaxLength < cfg.MinLength {
		cfg.MaxLength = cfg.MinLength
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Generate writes NumRecords records to w and returns the byte count and
// the statistics of what was written.
func (g *Generator) Generate(w io.Writer) (int64, Expected, error) {
	exp := Expected{Lengths: make(map[int]int64)}
	var buf bytes.Buffer
	var written int64

	for i := range g.cfg.NumRecords {
		buf.Reset()
		length := g.cfg.MinLength + g.rng.Intn(g.cfg.MaxLength-g.cfg.MinLength+1)
		header := fmt.Sprintf("read_%08d len=%d", i, length)

		buf.WriteByte('@')
		buf.WriteString(header)
		buf.WriteByte('\n')
		for range length {
			c := g.base()
			if c == 'G' || c == 'C' {
				exp.GC++
			}
			buf.WriteByte(c)
		}
		buf.WriteString("\n+")
		if g.cfg.RepeatHeader {
			buf.WriteString(header)
		}
		buf.WriteByte('\n')
		for range length {
			buf.WriteByte(byte(g.cfg.QualityOffset + g.rng.Intn(g.cfg.MaxQuality+1)))
		}
		buf.WriteByte('\n')

		exp.Records++
		exp.Bases += int64(length)
		exp.Lengths[length]++
		for len(exp.Samples) < length {
			exp.Samples = append(exp.Samples, 0)
		}
		for j := range length {
			exp.Samples[j]++
		}

		n, err := w.Write(buf.Bytes())
		written += int64(n)
		if err != nil {
			return written, exp, fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return written, exp, nil
}

func (g *Generator) base() byte {
	r := g.rng.Float64()
	switch {
	case r < g.cfg.NFraction:
		return 'N'
	case r < g.cfg.NFraction+g.cfg.GCFraction/2:
		return 'G'
	case r < g.cfg.NFraction+g.cfg.GCFraction:
		return 'C'
	case g.rng.Intn(2) == 0:
		return 'A'
	default:
		return 'T'
	}
}

// Bytes generates the data in memory.
func Bytes(cfg GeneratorConfig) ([]byte, Expected) {
	var buf bytes.Buffer
	_, exp, _ := NewGenerator(cfg).Generate(&buf)
	return buf.Bytes(), exp
}

// Gzip compresses data with pgzip.
func Gzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		tb.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
