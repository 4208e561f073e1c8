package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/fastq-stats/pkg/fileutil"
	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/logging"
)

// Output file names used by WriteDir.
const (
	ProfileFile = "profile.parquet"
	LengthsFile = "lengths.parquet"
)

// ProfileRow is one read position of the per-position profile. Position is
// 1-based, matching how the charts label the x axis.
type ProfileRow struct {
	Position    int32   `parquet:"position"`
	Samples     int64   `parquet:"samples"`
	MeanQuality float64 `parquet:"mean_quality"`
	APct        float64 `parquet:"a_pct"`
	TPct        float64 `parquet:"t_pct"`
	GPct        float64 `parquet:"g_pct"`
	CPct        float64 `parquet:"c_pct"`
}

// LengthRow is one bin of the read-length histogram.
type LengthRow struct {
	Length int32 `parquet:"length"`
	Count  int64 `parquet:"count"`
}

// ProfileRows flattens the per-position statistics of snap.
func ProfileRows(snap *fqstats.Snapshot) []ProfileRow {
	rows := make([]ProfileRow, len(snap.PositionQuality))
	for i := range rows {
		c := snap.PositionComposition[i]
		rows[i] = ProfileRow{
			Position:    int32(i + 1),
			Samples:     snap.PositionSamples[i],
			MeanQuality: snap.PositionQuality[i],
			APct:        c.A,
			TPct:        c.T,
			GPct:        c.G,
			CPct:        c.C,
		}
	}
	return rows
}

// LengthRows returns the histogram ordered by length.
func LengthRows(snap *fqstats.Snapshot) []LengthRow {
	lengths := snap.Lengths()
	rows := make([]LengthRow, len(lengths))
	for i, l := range lengths {
		rows[i] = LengthRow{Length: int32(l), Count: snap.LengthHistogram[l]}
	}
	return rows
}

// EncodeJSON writes snap as an indented JSON document.
func EncodeJSON(w io.Writer, snap *fqstats.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// WriteJSON writes snap to path. The file appears only once complete.
func WriteJSON(path string, snap *fqstats.Snapshot) error {
	start := time.Now()
	if err := fileutil.WriteStream(path, func(w io.Writer) error {
		return EncodeJSON(w, snap)
	}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logFile(path, start).Log("json report written")
	return nil
}

// WriteProfileParquet writes the per-position profile of snap to path.
func WriteProfileParquet(path string, snap *fqstats.Snapshot) error {
	start := time.Now()
	rows := ProfileRows(snap)
	if err := writeParquet(path, rows); err != nil {
		return err
	}
	logFile(path, start).Int("rows", len(rows)).Log("profile written")
	return nil
}

// WriteLengthsParquet writes the read-length histogram of snap to path.
func WriteLengthsParquet(path string, snap *fqstats.Snapshot) error {
	start := time.Now()
	rows := LengthRows(snap)
	if err := writeParquet(path, rows); err != nil {
		return err
	}
	logFile(path, start).Int("rows", len(rows)).Log("length histogram written")
	return nil
}

// WriteDir writes ProfileFile and LengthsFile into dir, first removing
// leftover .tmp files from an interrupted run.
func WriteDir(dir string, snap *fqstats.Snapshot) error {
	if err := fileutil.CleanupTmpFiles(dir); err != nil {
		return fmt.Errorf("clean %s: %w", dir, err)
	}
	if err := WriteProfileParquet(filepath.Join(dir, ProfileFile), snap); err != nil {
		return err
	}
	return WriteLengthsParquet(filepath.Join(dir, LengthsFile), snap)
}

func writeParquet[T any](path string, rows []T) error {
	err := fileutil.WriteTmpThenMove(path, func(tmpPath string) error {
		return parquet.WriteFile(tmpPath, rows)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func logFile(path string, start time.Time) *logging.CompletionEvent {
	ev := logging.FileCreated(*logging.L(), "report", time.Since(start)).Str("path", path)
	if info, err := os.Stat(path); err == nil {
		ev = ev.Bytes("size_bytes", info.Size())
	}
	return ev
}
