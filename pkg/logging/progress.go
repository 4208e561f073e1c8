package logging

import (
	"sync/atomic"
	"time"

	"github.com/eunmann/fastq-stats/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// PassTracker follows one analysis pass by bytes and records consumed.
// The worker updates it while other goroutines read it; it is safe for
// concurrent use.
type PassTracker struct {
	source    string
	total     int64 // compressed source size, -1 when unknown
	bytes     atomic.Int64
	records   atomic.Int64
	startTime time.Time
}

// NewPassTracker starts tracking a pass over source. total is the source size
// in bytes, or -1 if the size is unknown (stdin, some S3 responses).
func NewPassTracker(source string, total int64) *PassTracker {
	return &PassTracker{
		source:    source,
		total:     total,
		startTime: time.Now(),
	}
}

// Update records the latest absolute counters.
func (pt *PassTracker) Update(records, bytes int64) {
	pt.records.Store(records)
	pt.bytes.Store(bytes)
}

// Source returns the source name passed to NewPassTracker.
func (pt *PassTracker) Source() string {
	return pt.source
}

// Records returns the number of records folded so far.
func (pt *PassTracker) Records() int64 {
	return pt.records.Load()
}

// BytesRead returns the number of source bytes consumed so far.
func (pt *PassTracker) BytesRead() int64 {
	return pt.bytes.Load()
}

// Total returns the source size, or -1 when unknown.
func (pt *PassTracker) Total() int64 {
	return pt.total
}

// ProgressPct returns the byte progress (0-100), or -1 when the total is unknown.
func (pt *PassTracker) ProgressPct() float64 {
	if pt.total < 0 {
		return -1
	}
	if pt.total == 0 {
		return 100.0
	}
	pct := float64(pt.bytes.Load()) * 100.0 / float64(pt.total)
	return min(pct, 100.0)
}

// ETA extrapolates the remaining time from the byte rate so far. It returns 0
// when the total is unknown or nothing has been read yet.
func (pt *PassTracker) ETA() time.Duration {
	read := pt.bytes.Load()
	if pt.total < 0 || read <= 0 {
		return 0
	}
	remaining := pt.total - read
	if remaining <= 0 {
		return 0
	}
	elapsed := time.Since(pt.startTime)
	return time.Duration(float64(elapsed) * float64(remaining) / float64(read))
}

// Elapsed returns time since tracking started.
func (pt *PassTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

type field struct {
	key string
	val any
}

// CompletionEvent builds a completion log line with consistent fields:
// event, phase and duration_ms, followed by caller fields in insertion order.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  []field
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
	}
}

func (ce *CompletionEvent) add(key string, val any) *CompletionEvent {
	ce.fields = append(ce.fields, field{key: key, val: val})
	return ce
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	return ce.add(key, val)
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	return ce.add(key, val)
}

// Int64 adds an int64 field.
func (ce *CompletionEvent) Int64(key string, val int64) *CompletionEvent {
	return ce.add(key, val)
}

// Float64 adds a float64 field, with a display companion in pretty mode.
func (ce *CompletionEvent) Float64(key string, val float64) *CompletionEvent {
	ce.add(key, val)
	if IsPrettyMode() {
		ce.add(key+"_h", humanfmt.Float(val))
	}
	return ce
}

// Bytes adds a byte count with optional human-readable companion.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.add(key, bytes)
	if IsPrettyMode() {
		ce.add(key+"_h", humanfmt.Bytes(bytes))
	}
	return ce
}

// Count adds a count with optional human-readable companion.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.add(key, n)
	if IsPrettyMode() {
		ce.add(key+"_h", humanfmt.Count(n))
	}
	return ce
}

// Progress adds byte progress and ETA from a PassTracker. Sources of unknown
// size get bytes_read only.
func (ce *CompletionEvent) Progress(pt *PassTracker) *CompletionEvent {
	ce.Bytes("bytes_read", pt.BytesRead())
	if pt.Total() < 0 {
		return ce
	}
	ce.add("bytes_total", pt.Total())
	ce.add("progress_pct", pt.ProgressPct())
	if eta := pt.ETA(); eta > 0 {
		ce.add("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			ce.add("eta_h", humanfmt.Duration(eta))
		}
	}
	return ce
}

// Throughput adds byte throughput fields.
func (ce *CompletionEvent) Throughput(bytes int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.add("throughput_bps", float64(bytes)/ce.elapsed.Seconds())
		if IsPrettyMode() {
			ce.add("throughput_h", humanfmt.Throughput(bytes, ce.elapsed))
		}
	}
	return ce
}

// RecordRate adds a records-per-second field.
func (ce *CompletionEvent) RecordRate(records int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.add("records_per_sec", float64(records)/ce.elapsed.Seconds())
		if IsPrettyMode() {
			ce.add("records_per_sec_h", humanfmt.Rate(records, "reads", ce.elapsed))
		}
	}
	return ce
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the completion event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for _, f := range ce.fields {
		e = e.Interface(f.key, f.val)
	}
	e.Msg(msg)
}

// PassComplete starts a pass_completed event.
func PassComplete(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "pass_completed", "analyze", elapsed)
}

// PassProgress starts a pass_progress event.
func PassProgress(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "pass_progress", "analyze", elapsed)
}

// PhaseComplete starts a phase_completed event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// FileCreated starts a file_created event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}

// PassStarted logs the start of a pass (no duration).
func PassStarted(log zerolog.Logger, source string, size int64) {
	e := log.Info().
		Str("event", "pass_started").
		Str("phase", "analyze").
		Str("source", source)
	if size >= 0 {
		e = e.Int64("size_bytes", size)
		if IsPrettyMode() {
			e = e.Str("size_h", humanfmt.Bytes(size))
		}
	}
	e.Msg("pass started")
}
