// Package metrics exposes Prometheus instrumentation for analysis passes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/fqstats"
)

// Pass outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeFormatError = "format_error"
	OutcomeIOError     = "io_error"
	OutcomeCanceled    = "canceled"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics for fastq-stats.
type Metrics struct {
	PassesTotal    *prometheus.CounterVec
	PassesInFlight prometheus.Gauge
	RecordsTotal   prometheus.Counter
	BasesTotal     prometheus.Counter
	BytesReadTotal prometheus.Counter
	PassDuration   prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fastq_stats_passes_total",
		Help: "Analysis passes finished, by outcome",
	}, []string{"outcome"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fastq_stats_passes_in_flight",
		Help: "Analysis passes currently running",
	})

	records := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fastq_stats_records_total",
		Help: "Records folded into statistics",
	})

	bases := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fastq_stats_bases_total",
		Help: "Bases folded into statistics",
	})

	bytesRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fastq_stats_bytes_read_total",
		Help: "Raw source bytes read, before decompression",
	})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fastq_stats_pass_duration_seconds",
		Help:    "Wall time of analysis passes",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	reg.MustRegister(passes, inFlight, records, bases, bytesRead, duration)

	return &Metrics{
		PassesTotal:    passes,
		PassesInFlight: inFlight,
		RecordsTotal:   records,
		BasesTotal:     bases,
		BytesReadTotal: bytesRead,
		PassDuration:   duration,
	}
}

// PassStats are the per-pass totals reported by ObservePass. Counts cover
// what was consumed before the pass ended, successful or not.
type PassStats struct {
	Records   int64
	Bases     int64
	BytesRead int64
	Duration  time.Duration
}

// ObservePass records one finished pass. A nil receiver is a no-op so
// callers need not check whether metrics are enabled.
func (m *Metrics) ObservePass(err error, s PassStats) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(Outcome(err)).Inc()
	m.RecordsTotal.Add(float64(s.Records))
	m.BasesTotal.Add(float64(s.Bases))
	m.BytesReadTotal.Add(float64(s.BytesRead))
	m.PassDuration.Observe(s.Duration.Seconds())
}

// PassStarted increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) PassStarted() (done func()) {
	if m == nil {
		return func() {}
	}
	m.PassesInFlight.Inc()
	return m.PassesInFlight.Dec
}

// Outcome classifies a pass error into an outcome label.
func Outcome(err error) string {
	var formatErr *fastq.FormatError
	var ioErr *fastq.IOError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.As(err, &formatErr), errors.Is(err, fqstats.ErrLengthMismatch):
		return OutcomeFormatError
	case errors.As(err, &ioErr):
		return OutcomeIOError
	default:
		return OutcomeError
	}
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
