// Package report renders a Snapshot for people and for downstream tools:
// a plain-text summary, a JSON document and Parquet tables of the
// per-position profile and the length histogram.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/humanfmt"
)

// Quality reference levels drawn on the quality-by-position chart.
const (
	QualityFair = 20
	QualityGood = 30
)

// QualityBands counts offsets whose mean quality falls below each reference
// level.
type QualityBands struct {
	BelowFair int
	BelowGood int
}

// Bands classifies every offset of snap against QualityFair and QualityGood.
func Bands(snap *fqstats.Snapshot) QualityBands {
	var b QualityBands
	for _, q := range snap.PositionQuality {
		if q < QualityFair {
			b.BelowFair++
		}
		if q < QualityGood {
			b.BelowGood++
		}
	}
	return b
}

// OverallQuality is the mean quality over every base, that is the
// per-offset means weighted by their sample counts. It is 0 when snap is
// empty.
func OverallQuality(snap *fqstats.Snapshot) float64 {
	var sum float64
	var n int64
	for i, q := range snap.PositionQuality {
		sum += q * float64(snap.PositionSamples[i])
		n += snap.PositionSamples[i]
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// WriteSummary writes the summary view for the pass over name.
func WriteSummary(w io.Writer, name string, snap *fqstats.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Source:\t%s\n", name)
	fmt.Fprintf(tw, "Total reads:\t%d\n", snap.TotalRecords)
	fmt.Fprintf(tw, "Total bases:\t%d\n", snap.TotalBases)
	if snap.TotalRecords > 0 {
		fmt.Fprintf(tw, "Length range:\t%d-%d bp\n", snap.MinLength, snap.MaxLength)
	} else {
		fmt.Fprintf(tw, "Length range:\t-\n")
	}
	fmt.Fprintf(tw, "Mean length:\t%s bp\n", humanfmt.Float(snap.MeanLength))
	fmt.Fprintf(tw, "Median length:\t%s bp\n", humanfmt.Float(snap.MedianLength()))
	fmt.Fprintf(tw, "GC content:\t%s\n", humanfmt.Percent(snap.GCPercent))
	fmt.Fprintf(tw, "Mean quality:\t%s\n", humanfmt.Float(OverallQuality(snap)))

	b := Bands(snap)
	fmt.Fprintf(tw, "Offsets below Q%d:\t%d of %d\n", QualityFair, b.BelowFair, len(snap.PositionQuality))
	fmt.Fprintf(tw, "Offsets below Q%d:\t%d of %d\n", QualityGood, b.BelowGood, len(snap.PositionQuality))

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
