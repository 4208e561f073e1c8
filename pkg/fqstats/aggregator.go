// Package fqstats folds FASTQ records into population statistics in a single
// pass: read-length histogram, per-position mean quality, per-position base
// composition and overall GC content.
package fqstats

import (
	"errors"
	"fmt"

	"github.com/eunmann/fastq-stats/pkg/fastq"
)

// ErrFinalized is the reason behind every *UsageError.
var ErrFinalized = errors.New("aggregator already finalized")

// UsageError reports a call that violates the Fold-then-Finalize contract.
type UsageError struct {
	Op string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("fqstats: %s: %v", e.Op, ErrFinalized)
}

func (e *UsageError) Unwrap() error {
	return ErrFinalized
}

// ErrLengthMismatch is returned by Fold for a record whose quality and
// sequence lengths differ. Records from fastq.Reader never trigger it.
var ErrLengthMismatch = errors.New("fqstats: sequence and quality lengths differ")

// PositionBucket accumulates statistics for one 0-based offset within reads.
type PositionBucket struct {
	// Samples is the number of reads long enough to have this offset.
	Samples int64
	// QualityMean is the running mean of Phred scores at this offset.
	QualityMean float64
	// A, T, G, C count canonical bases (case-insensitive). Other symbols
	// only count toward Samples.
	A, T, G, C int64
}

// addQuality applies the incremental mean update. Samples must already
// include this observation.
func (b *PositionBucket) addQuality(q byte) {
	b.QualityMean += (float64(q) - b.QualityMean) / float64(b.Samples)
}

func (b *PositionBucket) addBase(c byte) {
	switch c {
	case 'A', 'a':
		b.A++
	case 'T', 't':
		b.T++
	case 'G', 'g':
		b.G++
	case 'C', 'c':
		b.C++
	}
}

// Aggregator accumulates statistics over a stream of records.
//
// The aggregator has a single writer and is NOT safe for concurrent use.
// After Finalize it is consumed: Fold and Finalize return *UsageError.
type Aggregator struct {
	records int64
	bases   int64
	gc      int64

	lengths map[int]int64

	// buckets grows on demand; buckets[i] covers offset i.
	buckets []PositionBucket

	finalized bool
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		lengths: make(map[int]int64),
	}
}

// Fold adds one record. The record is either folded completely or, on
// error, not at all.
func (a *Aggregator) Fold(rec fastq.Record) error {
	if a.finalized {
		return &UsageError{Op: "Fold"}
	}
	if len(rec.Quality) != len(rec.Sequence) {
		return fmt.Errorf("%w: record %q has %d bases and %d scores",
			ErrLengthMismatch, rec.Header, len(rec.Sequence), len(rec.Quality))
	}

	n := len(rec.Sequence)
	a.records++
	a.bases += int64(n)
	a.lengths[n]++

	a.grow(n)
	for i, c := range rec.Sequence {
		if c == 'G' || c == 'g' || c == 'C' || c == 'c' {
			a.gc++
		}
		b := &a.buckets[i]
		b.Samples++
		b.addBase(c)
		b.addQuality(rec.Quality[i])
	}
	return nil
}

// grow extends the bucket slice so that offsets [0, n) exist.
func (a *Aggregator) grow(n int) {
	if n <= len(a.buckets) {
		return
	}
	if n <= cap(a.buckets) {
		a.buckets = a.buckets[:n]
		return
	}
	grown := make([]PositionBucket, n, max(n, 2*cap(a.buckets)))
	copy(grown, a.buckets)
	a.buckets = grown
}

// Records returns the number of records folded so far.
func (a *Aggregator) Records() int64 {
	return a.records
}

// Bases returns the total sequence length folded so far.
func (a *Aggregator) Bases() int64 {
	return a.bases
}

// MaxLength returns the longest read seen so far.
func (a *Aggregator) MaxLength() int {
	return len(a.buckets)
}

// Finalize computes derived values and returns an immutable snapshot.
// The aggregator releases its accumulators and cannot be used afterwards.
func (a *Aggregator) Finalize() (*Snapshot, error) {
	if a.finalized {
		return nil, &UsageError{Op: "Finalize"}
	}
	a.finalized = true

	s := &Snapshot{
		TotalRecords:        a.records,
		TotalBases:          a.bases,
		GCCount:             a.gc,
		LengthHistogram:     a.lengths,
		PositionQuality:     make([]float64, len(a.buckets)),
		PositionComposition: make([]BaseComposition, len(a.buckets)),
		PositionSamples:     make([]int64, len(a.buckets)),
	}

	if a.records > 0 {
		s.MeanLength = float64(a.bases) / float64(a.records)
	}
	if a.bases > 0 {
		s.GCPercent = float64(a.gc) / float64(a.bases) * 100
	}
	s.MinLength, s.MaxLength = lengthRange(a.lengths)

	for i, b := range a.buckets {
		s.PositionQuality[i] = b.QualityMean
		s.PositionSamples[i] = b.Samples
		s.PositionComposition[i] = b.composition()
	}

	a.lengths = nil
	a.buckets = nil
	return s, nil
}

// composition divides by the bucket's own sample count, so ambiguity codes
// lower the four percentages instead of inflating them.
func (b PositionBucket) composition() BaseComposition {
	if b.Samples == 0 {
		return BaseComposition{}
	}
	n := float64(b.Samples)
	return BaseComposition{
		A: float64(b.A) / n * 100,
		T: float64(b.T) / n * 100,
		G: float64(b.G) / n * 100,
		C: float64(b.C) / n * 100,
	}
}

func lengthRange(h map[int]int64) (lo, hi int) {
	first := true
	for l := range h {
		if first || l < lo {
			lo = l
		}
		if first || l > hi {
			hi = l
		}
		first = false
	}
	return lo, hi
}
