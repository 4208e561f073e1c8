package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/metrics"
	"github.com/eunmann/fastq-stats/pkg/pipeline"
	"github.com/eunmann/fastq-stats/pkg/report"
	"github.com/eunmann/fastq-stats/pkg/s3fetch"
	"github.com/eunmann/fastq-stats/pkg/session"
	"github.com/eunmann/fastq-stats/pkg/source"
)

type analyzeFlags struct {
	commonFlags
	jsonOut     string
	parquetDir  string
	metricsOut  string
	progress    bool
	concurrency int
	failFast    bool
}

func (e *env) runAnalyze(ctx context.Context, args []string) error {
	fs := newFlagSet("analyze", e.stderr)
	var f analyzeFlags
	f.register(fs)
	fs.StringVar(&f.jsonOut, "json", "", "write the statistics as JSON to `FILE` (single source)")
	fs.StringVar(&f.parquetDir, "parquet-dir", "", "write profile.parquet and lengths.parquet to `DIR` (single source)")
	fs.StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus metrics to `FILE` after the run")
	fs.BoolVar(&f.progress, "progress", false, "show a progress bar on stderr")
	fs.IntVar(&f.concurrency, "concurrency", 1, "sources analyzed at once")
	fs.BoolVar(&f.failFast, "fail-fast", false, "stop remaining sources after the first failure")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := f.validate(); err != nil {
		return err
	}

	sources := fs.Args()
	if len(sources) == 0 {
		return errors.New("at least one SOURCE is required (path, - or s3://bucket/key)")
	}
	if len(sources) > 1 && (f.jsonOut != "" || f.parquetDir != "") {
		return errors.New("--json and --parquet-dir take a single SOURCE")
	}
	if f.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", f.concurrency)
	}

	ctx, tracker := e.setup(ctx, &f.commonFlags, "analyze")
	defer tracker.Stop()

	reg := prometheus.NewRegistry()
	opts := pipeline.DefaultOptions()
	opts.Reader = opts.Reader.WithQualityOffset(f.phredOffset)
	opts.Source = source.Options{
		S3Download: f.s3Download,
		Downloader: s3fetch.DefaultDownloaderConfig(),
	}
	opts.Concurrency = f.concurrency
	opts.FailFast = f.failFast
	if f.metricsOut != "" {
		opts.Metrics = metrics.NewMetrics(reg)
	}

	bar := newProgress(e.stderr, f.progress, singleSize(sources))
	if bar.enabled() {
		opts.ProgressEvery = progressEvery
		opts.OnProgress = bar.observe
	}

	var err error
	if len(sources) == 1 {
		err = e.analyzeOne(ctx, sources[0], opts, f)
	} else {
		err = e.analyzeMany(ctx, sources, opts)
	}
	bar.finish()

	if f.metricsOut != "" {
		if mErr := metrics.WriteTextfile(f.metricsOut, reg); mErr != nil {
			return errors.Join(err, mErr)
		}
	}
	return err
}

// analyzeOne runs a single source through a session so the failure text is
// the same one an interactive front end would show.
func (e *env) analyzeOne(ctx context.Context, src string, opts pipeline.Options, f analyzeFlags) error {
	s := session.New(session.Options{Policy: session.Reject, Pipeline: opts})
	job, err := s.Start(ctx, src)
	if err != nil {
		return err
	}
	out := <-job.Done()
	if out.Err != nil {
		return &displayError{msg: out.Message, err: out.Err}
	}
	return e.writeOutputs(src, out.Snapshot, f)
}

func (e *env) analyzeMany(ctx context.Context, sources []string, opts pipeline.Options) error {
	results, err := pipeline.AnalyzeAll(ctx, sources, opts)

	var errs []error
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(e.stdout)
		}
		if r.Err != nil {
			fmt.Fprintf(e.stdout, "Source: %s\nError:  %s\n", r.Source, session.Message(r.Source, r.Err))
			errs = append(errs, r.Err)
			continue
		}
		if wErr := report.WriteSummary(e.stdout, r.Source, r.Snapshot); wErr != nil {
			return wErr
		}
	}

	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d sources failed: %w", len(errs), len(sources), errors.Join(errs...))
	}
	return nil
}

func (e *env) writeOutputs(src string, snap *fqstats.Snapshot, f analyzeFlags) error {
	if err := report.WriteSummary(e.stdout, src, snap); err != nil {
		return err
	}
	if f.jsonOut != "" {
		if err := report.WriteJSON(f.jsonOut, snap); err != nil {
			return err
		}
	}
	if f.parquetDir != "" {
		if err := report.WriteDir(f.parquetDir, snap); err != nil {
			return err
		}
	}
	return nil
}

// singleSize returns the size of a lone local source, or -1.
func singleSize(sources []string) int64 {
	if len(sources) != 1 || sources[0] == source.Stdin || s3fetch.IsS3URI(sources[0]) {
		return -1
	}
	info, err := os.Stat(sources[0])
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	return info.Size()
}

// displayError carries a one-line message for the user alongside the
// underlying error for errors.Is checks.
type displayError struct {
	msg string
	err error
}

func (d *displayError) Error() string { return d.msg }
func (d *displayError) Unwrap() error { return d.err }
