// Package cli implements the command-line interface for fastq-stats.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/logging"
	"github.com/eunmann/fastq-stats/pkg/memdiag"
)

const usage = `usage: fastq-stats <command> [options]
commands:
  analyze  compute read statistics for one or more FASTQ sources
  index    build a read-ID index for a FASTQ source
  lookup   find read IDs in an index`

// Run executes the CLI with the given arguments. SIGINT and SIGTERM cancel
// the running command.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, args, os.Stdout, os.Stderr)
}

// RunContext is Run with an explicit context and output streams. Results go
// to stdout; logs and progress go to stderr.
func RunContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	e := &env{stdout: stdout, stderr: stderr}
	switch args[0] {
	case "analyze":
		return e.runAnalyze(ctx, args[1:])
	case "index":
		return e.runIndex(ctx, args[1:])
	case "lookup":
		return e.runLookup(args[1:])
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

type env struct {
	stdout io.Writer
	stderr io.Writer
}

// commonFlags are shared by every subcommand that reads FASTQ.
type commonFlags struct {
	debug       bool
	human       bool
	phredOffset int
	s3Download  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&c.human, "human", false, "human-readable console logs")
	fs.IntVar(&c.phredOffset, "phred-offset", 33, "quality encoding offset (33 or 64)")
	fs.BoolVar(&c.s3Download, "s3-download", false, "spool s3:// objects to a temp file with parallel ranged GETs")
}

func (c *commonFlags) validate() error {
	if c.phredOffset != 33 && c.phredOffset != 64 {
		return fmt.Errorf("--phred-offset must be 33 or 64, got %d", c.phredOffset)
	}
	return nil
}

// setup initializes logging and starts memory diagnostics in phase. The
// caller stops the returned tracker.
func (e *env) setup(ctx context.Context, c *commonFlags, phase string) (context.Context, *memdiag.Tracker) {
	logging.InitWriter(e.stderr, c.debug, c.human)
	ctx = logctx.WithLogger(ctx, logging.WithPhase(phase))

	tracker := memdiag.NewTracker(memdiag.DefaultConfig())
	tracker.Start()
	tracker.SetPhase(phase)
	return ctx, tracker
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
