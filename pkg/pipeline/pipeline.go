// Package pipeline composes the read path and the fold path: it opens a
// source, parses it with fastq.Reader and folds every record into an
// fqstats.Aggregator, one record at a time.
//
// A pass stops at the first malformed record, at the first I/O error or when
// its context is canceled. The source is released on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/decompress"
	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/logging"
	"github.com/eunmann/fastq-stats/pkg/metrics"
	"github.com/eunmann/fastq-stats/pkg/source"
)

// DefaultProgressEvery is the default number of records between progress
// reports.
const DefaultProgressEvery = 100_000

// Progress is a point-in-time view of a running pass.
type Progress struct {
	Source    string
	Records   int64
	Bases     int64
	BytesRead int64
	// Size is the source size in bytes, or -1 when unknown.
	Size int64
}

// Options configures a pass.
type Options struct {
	Reader fastq.ReaderOptions
	Source source.Options

	// ProgressEvery is the number of records between OnProgress calls and
	// debug progress log lines. Negative disables progress reporting.
	ProgressEvery int64

	// OnProgress is called from the worker goroutine. It must not block.
	OnProgress func(Progress)

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Concurrency bounds the number of sources AnalyzeAll reads at once.
	// Default: 1.
	Concurrency int

	// FailFast makes AnalyzeAll cancel the remaining passes after the first
	// failure.
	FailFast bool
}

// DefaultOptions returns options for Phred+33 input with periodic progress.
func DefaultOptions() Options {
	return Options{
		Reader:        fastq.DefaultReaderOptions(),
		ProgressEvery: DefaultProgressEvery,
		Concurrency:   1,
	}
}

// Validate fills zero values with defaults.
func (o *Options) Validate() {
	o.Reader.Validate()
	if o.ProgressEvery == 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
}

// Analyze runs one pass over the source named by uri (a path, "-" or an
// s3:// URI) and returns its statistics.
func Analyze(ctx context.Context, uri string, opts Options) (*fqstats.Snapshot, error) {
	opts.Validate()

	stream, err := source.Open(ctx, uri, opts.Source)
	if err != nil {
		log := logctx.FromContext(ctx)
		log.Error().Err(err).
			Str("event", "pass_failed").
			Str("source", uri).
			Msg("open source")
		opts.Metrics.ObservePass(err, metrics.PassStats{})
		return nil, err
	}
	defer stream.Close()

	return run(ctx, stream, opts)
}

// AnalyzeReader runs one pass over r. name labels logs and errors. The
// caller keeps ownership of r.
func AnalyzeReader(ctx context.Context, r io.Reader, name string, opts Options) (*fqstats.Snapshot, error) {
	opts.Validate()
	return run(ctx, source.FromReader(name, r), opts)
}

func run(ctx context.Context, stream *source.Stream, opts Options) (*fqstats.Snapshot, error) {
	log := logctx.FromContext(ctx)
	start := time.Now()
	defer opts.Metrics.PassStarted()()

	tracker := logging.NewPassTracker(stream.Name, stream.Size)
	logging.PassStarted(log, stream.Name, stream.Size)

	// Closing the stream unblocks a read stuck on a slow source.
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	agg := fqstats.New()
	snap, format, err := fold(ctx, stream, agg, tracker, opts)

	elapsed := time.Since(start)
	opts.Metrics.ObservePass(err, metrics.PassStats{
		Records:   agg.Records(),
		Bases:     agg.Bases(),
		BytesRead: stream.BytesRead(),
		Duration:  elapsed,
	})

	if err != nil {
		err = passError(stream.Name, err)
		log.Error().Err(err).
			Str("event", "pass_failed").
			Str("phase", "analyze").
			Int64("records", agg.Records()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("pass failed")
		return nil, err
	}

	logging.PassComplete(log, elapsed).
		Str("format", format.String()).
		Count("records", snap.TotalRecords).
		Count("bases", snap.TotalBases).
		Bytes("bytes_read", stream.BytesRead()).
		Float64("mean_length", snap.MeanLength).
		Float64("gc_percent", snap.GCPercent).
		Int("max_length", snap.MaxLength).
		Throughput(stream.BytesRead()).
		RecordRate(snap.TotalRecords).
		Log("pass completed")

	return snap, nil
}

// fold drives the reader to exhaustion. The reader is closed before fold
// returns.
func fold(ctx context.Context, stream *source.Stream, agg *fqstats.Aggregator, tracker *logging.PassTracker, opts Options) (*fqstats.Snapshot, decompress.Format, error) {
	rd, err := fastq.NewReader(stream, stream.Name, opts.Reader)
	if err != nil {
		return nil, decompress.None, canceledOr(ctx, err)
	}
	defer rd.Close()

	log := logctx.FromContext(ctx)
	done := ctx.Done()
	for {
		select {
		case <-done:
			return nil, rd.Format(), ctx.Err()
		default:
		}

		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rd.Format(), canceledOr(ctx, err)
		}
		if err := agg.Fold(rec); err != nil {
			return nil, rd.Format(), err
		}

		if opts.ProgressEvery > 0 && agg.Records()%opts.ProgressEvery == 0 {
			report(log, stream, agg, tracker, opts.OnProgress)
		}
	}

	if opts.OnProgress != nil {
		report(log, stream, agg, tracker, opts.OnProgress)
	}

	snap, err := agg.Finalize()
	if err != nil {
		return nil, rd.Format(), err
	}
	return snap, rd.Format(), nil
}

func report(log zerolog.Logger, stream *source.Stream, agg *fqstats.Aggregator, tracker *logging.PassTracker, cb func(Progress)) {
	tracker.Update(agg.Records(), stream.BytesRead())
	logging.PassProgress(log, tracker.Elapsed()).
		Count("records", agg.Records()).
		Progress(tracker).
		LogDebug("pass progress")
	if cb != nil {
		cb(Progress{
			Source:    stream.Name,
			Records:   agg.Records(),
			Bases:     agg.Bases(),
			BytesRead: stream.BytesRead(),
			Size:      stream.Size,
		})
	}
}

// canceledOr prefers the context error when the pass was canceled, since a
// canceled read usually surfaces as a closed-file error.
func canceledOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// passError adds the source name unless err already carries it.
func passError(name string, err error) error {
	var ioErr *fastq.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return fmt.Errorf("analyze %s: %w", name, err)
}
