package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/benchutil"
	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/metrics"
)

func testContext(buf *bytes.Buffer) context.Context {
	return logctx.WithLogger(context.Background(), zerolog.New(buf))
}

func TestAnalyze_PlainAndGzip(t *testing.T) {
	data, exp := benchutil.Bytes(benchutil.DefaultConfig(500))
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"plain", benchutil.WriteFile(t, dir, "reads.fq", data)},
		{"gzip", benchutil.WriteFile(t, dir, "reads.fq.gz", benchutil.Gzip(t, data))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			snap, err := Analyze(testContext(&logs), tt.path, DefaultOptions())
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}

			if snap.TotalRecords != exp.Records || snap.TotalBases != exp.Bases || snap.GCCount != exp.GC {
				t.Errorf("got %d/%d/%d, want %d/%d/%d",
					snap.TotalRecords, snap.TotalBases, snap.GCCount, exp.Records, exp.Bases, exp.GC)
			}
			for i, n := range exp.Samples {
				if snap.PositionSamples[i] != n {
					t.Fatalf("PositionSamples[%d] = %d, want %d", i, snap.PositionSamples[i], n)
				}
			}

			out := logs.String()
			if !strings.Contains(out, `"event":"pass_started"`) || !strings.Contains(out, `"event":"pass_completed"`) {
				t.Errorf("expected start and completion events, got: %s", out)
			}
		})
	}
}

func TestAnalyze_MissingFile(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "nope.fq")

	_, err := Analyze(testContext(&logs), path, DefaultOptions())
	var ioErr *fastq.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *fastq.IOError, got %T: %v", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if !strings.Contains(logs.String(), `"event":"pass_failed"`) {
		t.Errorf("expected pass_failed log, got: %s", logs.String())
	}
}

func TestAnalyzeReader_FormatError(t *testing.T) {
	input := "@r1\nACGT\n+\nIIII\n@r2\nACGTA\n+\nIIII\n"
	var logs bytes.Buffer

	_, err := AnalyzeReader(testContext(&logs), strings.NewReader(input), "crafted.fq", DefaultOptions())
	var fe *fastq.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fastq.FormatError, got %T: %v", err, err)
	}
	if fe.Record != 2 || !errors.Is(err, fastq.ErrLengthMismatch) {
		t.Errorf("FormatError = %+v", fe)
	}
	if !strings.HasPrefix(err.Error(), "analyze crafted.fq: ") {
		t.Errorf("error should name the source, got %q", err)
	}
}

func TestAnalyzeReader_Empty(t *testing.T) {
	var logs bytes.Buffer
	snap, err := AnalyzeReader(testContext(&logs), strings.NewReader(""), "empty.fq", DefaultOptions())
	if err != nil {
		t.Fatalf("AnalyzeReader: %v", err)
	}
	if snap.TotalRecords != 0 || snap.MeanLength != 0 || snap.GCPercent != 0 || len(snap.PositionQuality) != 0 {
		t.Errorf("empty input produced %+v", snap)
	}
}

func TestAnalyzeReader_Progress(t *testing.T) {
	data, exp := benchutil.Bytes(benchutil.DefaultConfig(250))
	var logs bytes.Buffer
	var calls atomic.Int64
	var last Progress

	opts := DefaultOptions()
	opts.ProgressEvery = 100
	opts.OnProgress = func(p Progress) {
		calls.Add(1)
		last = p
	}

	if _, err := AnalyzeReader(testContext(&logs), bytes.NewReader(data), "gen.fq", opts); err != nil {
		t.Fatalf("AnalyzeReader: %v", err)
	}
	// At 100, 200 and once at the end.
	if calls.Load() != 3 {
		t.Errorf("OnProgress called %d times, want 3", calls.Load())
	}
	if last.Records != exp.Records || last.BytesRead != int64(len(data)) || last.Size != -1 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestAnalyzeReader_Canceled(t *testing.T) {
	data, _ := benchutil.Bytes(benchutil.DefaultConfig(1000))
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(testContext(&logs))

	opts := DefaultOptions()
	opts.ProgressEvery = 10
	opts.OnProgress = func(p Progress) {
		if p.Records >= 20 {
			cancel()
		}
	}

	_, err := AnalyzeReader(ctx, bytes.NewReader(data), "gen.fq", opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// blockingReader yields its data and then blocks until closed.
type blockingReader struct {
	data   *bytes.Reader
	closed chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if b.data.Len() > 0 {
		return b.data.Read(p)
	}
	<-b.closed
	return 0, os.ErrClosed
}

func TestAnalyzeReader_CanceledWhileBlocked(t *testing.T) {
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(testContext(&logs))
	br := &blockingReader{data: bytes.NewReader([]byte("@r1\nAC")), closed: make(chan struct{})}

	go func() {
		cancel()
		close(br.closed)
	}()

	_, err := AnalyzeReader(ctx, br, "stuck.fq", DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyze_Metrics(t *testing.T) {
	data, exp := benchutil.Bytes(benchutil.DefaultConfig(50))
	dir := t.TempDir()
	good := benchutil.WriteFile(t, dir, "good.fq", data)
	bad := benchutil.WriteFile(t, dir, "bad.fq", []byte("@r1\nACGT\nIIII\n"))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	opts := DefaultOptions()
	opts.Metrics = m

	var logs bytes.Buffer
	ctx := testContext(&logs)
	if _, err := Analyze(ctx, good, opts); err != nil {
		t.Fatalf("Analyze good: %v", err)
	}
	if _, err := Analyze(ctx, bad, opts); err == nil {
		t.Fatal("expected error for bad file")
	}

	if got := testutil.ToFloat64(m.PassesTotal.WithLabelValues(metrics.OutcomeOK)); got != 1 {
		t.Errorf("ok passes = %v", got)
	}
	if got := testutil.ToFloat64(m.PassesTotal.WithLabelValues(metrics.OutcomeFormatError)); got != 1 {
		t.Errorf("format_error passes = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsTotal); got != float64(exp.Records) {
		t.Errorf("records = %v, want %d", got, exp.Records)
	}
	if got := testutil.ToFloat64(m.PassesInFlight); got != 0 {
		t.Errorf("in-flight = %v after passes finished", got)
	}
}

func TestOptions_Validate(t *testing.T) {
	var o Options
	o.Validate()
	if o.ProgressEvery != DefaultProgressEvery || o.Concurrency != 1 || o.Reader.QualityOffset != fastq.Sanger {
		t.Errorf("Validate = %+v", o)
	}

	o = Options{ProgressEvery: -1, Concurrency: 4}
	o.Validate()
	if o.ProgressEvery != -1 || o.Concurrency != 4 {
		t.Errorf("Validate overwrote explicit values: %+v", o)
	}
}

func BenchmarkAnalyzeReader(b *testing.B) {
	for _, n := range benchutil.BenchmarkSizes {
		data, _ := benchutil.Bytes(benchutil.DefaultConfig(n))
		b.Run(fmt.Sprintf("records=%d", n), func(b *testing.B) {
			ctx := logctx.WithLogger(context.Background(), zerolog.Nop())
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for range b.N {
				if _, err := AnalyzeReader(ctx, bytes.NewReader(data), "bench.fq", DefaultOptions()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkAnalyzeReader_Scaling(b *testing.B) {
	benchutil.SkipIfNoLongBench(b)

	for _, n := range benchutil.ScalingSizes {
		data, _ := benchutil.Bytes(benchutil.DefaultConfig(n))
		b.Run(fmt.Sprintf("records=%d", n), func(b *testing.B) {
			ctx := logctx.WithLogger(context.Background(), zerolog.Nop())
			opts := DefaultOptions()
			opts.ProgressEvery = -1
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for range b.N {
				if _, err := AnalyzeReader(ctx, bytes.NewReader(data), "scaling.fq", opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
