package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/fileutil"
	"github.com/eunmann/fastq-stats/pkg/readindex"
	"github.com/eunmann/fastq-stats/pkg/s3fetch"
	"github.com/eunmann/fastq-stats/pkg/source"
)

func (e *env) runIndex(ctx context.Context, args []string) error {
	fs := newFlagSet("index", e.stderr)
	var c commonFlags
	c.register(fs)
	outPath := fs.String("out", "", "output `FILE` for the read index")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}
	if *outPath == "" {
		return errors.New("--out is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one SOURCE is required")
	}
	src := fs.Arg(0)

	ctx, tracker := e.setup(ctx, &c, "index")
	defer tracker.Stop()

	stream, err := source.Open(ctx, src, source.Options{
		S3Download: c.s3Download,
		Downloader: s3fetch.DefaultDownloaderConfig(),
	})
	if err != nil {
		return err
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	opts := fastq.DefaultReaderOptions().WithQualityOffset(c.phredOffset)
	rd, err := fastq.NewReader(stream, src, opts)
	if err != nil {
		return err
	}
	defer rd.Close()

	stats, err := readindex.Build(logctx.WithPass(ctx, src, ""), rd, *outPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("index %s: %w", src, err)
	}

	fmt.Fprintf(e.stdout, "indexed %d of %d reads (%d duplicate IDs) into %s\n",
		stats.Indexed, stats.Records, stats.Duplicates, *outPath)
	return nil
}

func (e *env) runLookup(args []string) error {
	fs := newFlagSet("lookup", e.stderr)
	indexPath := fs.String("index", "", "read index `FILE` built by the index command")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *indexPath == "" {
		return errors.New("--index is required")
	}
	if fs.NArg() == 0 {
		return errors.New("at least one read ID is required")
	}

	if !fileutil.Exists(*indexPath) {
		return fmt.Errorf("index %s not found; build it with the index command", *indexPath)
	}
	idx, err := readindex.Open(*indexPath)
	if err != nil {
		return err
	}

	// One line per ID: the 0-based record ordinal, or "-" when absent.
	for _, id := range fs.Args() {
		if ord, ok := idx.Lookup(id); ok {
			fmt.Fprintf(e.stdout, "%s\t%d\n", id, ord)
		} else {
			fmt.Fprintf(e.stdout, "%s\t-\n", id)
		}
	}
	return nil
}
