package fqstats

import "slices"

// BaseComposition holds the percentage of A, T, G and C at one offset.
// The four values sum to less than 100 where other symbols (N, IUPAC codes)
// were observed.
type BaseComposition struct {
	A float64 `json:"a"`
	T float64 `json:"t"`
	G float64 `json:"g"`
	C float64 `json:"c"`
}

// Snapshot is the immutable result of one pass. Callers must not modify it.
type Snapshot struct {
	TotalRecords int64 `json:"total_records"`
	TotalBases   int64 `json:"total_bases"`
	GCCount      int64 `json:"gc_count"`

	// LengthHistogram maps read length to the number of reads of that length.
	LengthHistogram map[int]int64 `json:"length_histogram"`

	MinLength  int     `json:"min_length"`
	MaxLength  int     `json:"max_length"`
	MeanLength float64 `json:"mean_length"`
	GCPercent  float64 `json:"gc_percent"`

	// Position* slices are indexed by 0-based offset, 0..MaxLength-1.
	PositionQuality     []float64         `json:"position_quality"`
	PositionComposition []BaseComposition `json:"position_composition"`
	PositionSamples     []int64           `json:"position_samples"`
}

// Lengths returns the distinct read lengths in ascending order.
func (s *Snapshot) Lengths() []int {
	out := make([]int, 0, len(s.LengthHistogram))
	for l := range s.LengthHistogram {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// MedianLength returns the median read length, averaging the two middle
// reads for an even count. It is 0 for an empty snapshot.
func (s *Snapshot) MedianLength() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	lo := (s.TotalRecords - 1) / 2
	hi := s.TotalRecords / 2

	var seen int64
	loLen, hiLen := -1, -1
	for _, l := range s.Lengths() {
		seen += s.LengthHistogram[l]
		if loLen < 0 && seen > lo {
			loLen = l
		}
		if seen > hi {
			hiLen = l
			break
		}
	}
	return float64(loLen+hiLen) / 2
}
