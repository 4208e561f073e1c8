// Package session runs analysis passes off the caller's goroutine and hands
// each result back exactly once.
//
// A Session allows one pass in flight. An interactive front end calls Start
// when the user picks a file, keeps the returned Job, and receives the
// Outcome from Job.Done on its own event loop. The worker never touches
// caller state; the channel is the only handoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/fqstats"
	"github.com/eunmann/fastq-stats/pkg/pipeline"
)

var (
	// ErrBusy is returned by Start under the Reject policy while a pass is running.
	ErrBusy = errors.New("session: analysis already in progress")

	// ErrSuperseded is the cancellation cause of a pass replaced by a newer
	// Start under the CancelPrevious policy.
	ErrSuperseded = errors.New("session: superseded by a newer analysis")
)

// Policy decides what Start does while a pass is running.
type Policy int

const (
	// Reject refuses the new pass with ErrBusy.
	Reject Policy = iota
	// CancelPrevious cancels the running pass and queues the new one behind it.
	CancelPrevious
)

func (p Policy) String() string {
	switch p {
	case Reject:
		return "reject"
	case CancelPrevious:
		return "cancel-previous"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Options configures a Session.
type Options struct {
	Policy   Policy
	Pipeline pipeline.Options
}

// Outcome is the single result of a Job.
type Outcome struct {
	JobID    uuid.UUID
	Source   string
	Snapshot *fqstats.Snapshot
	Err      error
	// Message is a one-line description of Err for display, empty on success.
	Message  string
	Duration time.Duration
}

// Job is one submitted pass.
type Job struct {
	ID     uuid.UUID
	Source string

	done     chan Outcome
	finished chan struct{}
	cancel   context.CancelCauseFunc
}

// Done delivers the job's Outcome once and is then closed.
func (j *Job) Done() <-chan Outcome {
	return j.done
}

// Cancel stops the job's pass. The Outcome still arrives, carrying
// context.Canceled.
func (j *Job) Cancel() {
	j.cancel(context.Canceled)
}

type analyzeFunc func(ctx context.Context, uri string, opts pipeline.Options) (*fqstats.Snapshot, error)

// Session serializes passes. It is safe for concurrent use.
type Session struct {
	opts    Options
	analyze analyzeFunc

	mu      sync.Mutex
	current *Job
	wg      sync.WaitGroup
}

// New creates an idle session.
func New(opts Options) *Session {
	opts.Pipeline.Validate()
	return &Session{opts: opts, analyze: pipeline.Analyze}
}

// Start submits a pass over uri. The pass runs on its own goroutine under a
// context derived from ctx; canceling ctx cancels the pass.
func (s *Session) Start(ctx context.Context, uri string) (*Job, error) {
	s.mu.Lock()
	prev := s.current
	if prev != nil {
		if s.opts.Policy == Reject {
			s.mu.Unlock()
			return nil, ErrBusy
		}
		prev.cancel(ErrSuperseded)
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	job := &Job{
		ID:       uuid.New(),
		Source:   uri,
		done:     make(chan Outcome, 1),
		finished: make(chan struct{}),
		cancel:   cancel,
	}
	s.current = job
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(jobCtx, job, prev)
	return job, nil
}

func (s *Session) run(ctx context.Context, job *Job, prev *Job) {
	defer s.wg.Done()
	defer job.cancel(nil)

	// Keep one pass in flight: a replacement waits for the old pass to
	// release its source.
	if prev != nil {
		<-prev.finished
	}

	ctx = logctx.WithPass(ctx, job.Source, job.ID.String())
	log := logctx.FromContext(ctx)
	log.Debug().Str("event", "job_started").Msg("job started")

	start := time.Now()
	snap, err := s.analyze(ctx, job.Source, s.opts.Pipeline)
	if err != nil && errors.Is(context.Cause(ctx), ErrSuperseded) {
		err = fmt.Errorf("%w: %w", ErrSuperseded, err)
	}

	out := Outcome{
		JobID:    job.ID,
		Source:   job.Source,
		Snapshot: snap,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		out.Message = Message(job.Source, err)
	}

	s.mu.Lock()
	if s.current == job {
		s.current = nil
	}
	s.mu.Unlock()
	close(job.finished)

	job.done <- out
	close(job.done)
	log.Debug().Str("event", "job_finished").Bool("ok", err == nil).Msg("job finished")
}

// Busy reports whether a pass is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Cancel stops the pass in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cancel(context.Canceled)
	}
}

// Wait blocks until every started job has delivered its Outcome.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Message renders err as a single line suitable for an error dialog.
func Message(src string, err error) string {
	var formatErr *fastq.FormatError
	var ioErr *fastq.IOError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSuperseded):
		return fmt.Sprintf("Analysis of %s was replaced by a newer one.", src)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Analysis of %s was canceled.", src)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Analysis of %s timed out.", src)
	case errors.As(err, &formatErr):
		msg := fmt.Sprintf("%s is not valid FASTQ: record %d (line %d): %v",
			src, formatErr.Record, formatErr.Line, formatErr.Reason)
		if formatErr.Detail != "" {
			msg += " (" + formatErr.Detail + ")"
		}
		return msg
	case errors.As(err, &ioErr):
		return fmt.Sprintf("Cannot read %s: %v", ioErr.Source, ioErr.Err)
	default:
		return fmt.Sprintf("Analysis of %s failed: %v", src, err)
	}
}
