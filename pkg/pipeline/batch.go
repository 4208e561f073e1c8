package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/logging"
)

// Result is the outcome of one pass in a batch.
type Result struct {
	Source   string
	PassID   string
	Snapshot *fqstats.Snapshot
	Err      error
	Duration time.Duration
}

// AnalyzeAll runs one independent pass per source, at most
// opts.Concurrency at a time. Each pass is still strictly sequential.
//
// Per-source failures are reported in Result.Err and do not stop the other
// passes unless opts.FailFast is set. The returned error is non-nil only when
// ctx itself was canceled. Results are in the order of uris.
func AnalyzeAll(ctx context.Context, uris []string, opts Options) ([]Result, error) {
	opts.Validate()
	start := time.Now()
	results := make([]Result, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, uri := range uris {
		g.Go(func() error {
			passID := uuid.NewString()
			passCtx := logctx.WithPass(gctx, uri, passID)

			passStart := time.Now()
			snap, err := Analyze(passCtx, uri, opts)
			results[i] = Result{
				Source:   uri,
				PassID:   passID,
				Snapshot: snap,
				Err:      err,
				Duration: time.Since(passStart),
			}
			if err != nil && opts.FailFast {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logging.PhaseComplete(logctx.FromContext(ctx), "batch", time.Since(start)).
		Int("sources", len(uris)).
		Int("failed", failed).
		Int("concurrency", opts.Concurrency).
		Log("batch completed")

	return results, ctx.Err()
}
