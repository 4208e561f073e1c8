// Package memdiag logs heap usage while a pass runs.
//
// Enable periodic logging with FQSTATS_MEM_DEBUG=1.
// Enable the pprof server with FQSTATS_MEM_PPROF=1 (listens on PprofAddr).
package memdiag

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/eunmann/fastq-stats/pkg/humanfmt"
	"github.com/eunmann/fastq-stats/pkg/logging"
)

// PprofAddr is where the pprof server listens when enabled.
const PprofAddr = "localhost:6060"

// Config holds configuration for memory diagnostics.
type Config struct {
	Enabled      bool
	PprofEnabled bool
	LogInterval  time.Duration
}

// DefaultConfig reads the configuration from the environment.
func DefaultConfig() Config {
	return Config{
		Enabled:      os.Getenv("FQSTATS_MEM_DEBUG") == "1",
		PprofEnabled: os.Getenv("FQSTATS_MEM_PPROF") == "1",
		LogInterval:  5 * time.Second,
	}
}

// Stats is the subset of runtime.MemStats worth logging.
type Stats struct {
	HeapAlloc  uint64
	HeapInuse  uint64
	HeapIdle   uint64
	StackInuse uint64
	Sys        uint64
	NumGC      uint32
	GCCPU      float64
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
		HeapIdle:   m.HeapIdle,
		StackInuse: m.StackInuse,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		GCCPU:      m.GCCPUFraction,
	}
}

// Tracker logs memory usage on a ticker and on phase changes.
type Tracker struct {
	config  Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	stopped sync.Once

	mu       sync.Mutex
	phase    string
	peakHeap uint64
}

// NewTracker creates a tracker that logs to the global logger.
func NewTracker(config Config) *Tracker {
	return NewTrackerWithLogger(config, *logging.L())
}

// NewTrackerWithLogger creates a tracker that logs to log.
func NewTrackerWithLogger(config Config, log zerolog.Logger) *Tracker {
	return &Tracker{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		phase:  "init",
	}
}

// Start begins periodic memory logging if enabled.
func (t *Tracker) Start() {
	if !t.config.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}

	t.log.Info().Dur("interval", t.config.LogInterval).Msg("memory diagnostics enabled")

	if t.config.PprofEnabled {
		go func() {
			t.log.Info().Str("addr", PprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(PprofAddr, nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go t.logLoop()
}

// Stop stops the tracker. It is safe to call more than once.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	t.stopped.Do(func() {
		close(t.stopCh)
		<-t.doneCh
	})
}

// SetPhase sets the current phase for logging context.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()

	t.LogNow("phase_change")
}

// LogNow logs current memory stats immediately.
func (t *Tracker) LogNow(reason string) {
	if !t.config.Enabled {
		return
	}
	stats := Read()
	phase, peak := t.observe(stats)

	t.log.Debug().
		Str("event", "memory_stats").
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(stats.HeapInuse))).
		Str("heap_idle", humanfmt.Bytes(int64(stats.HeapIdle))).
		Str("stack_inuse", humanfmt.Bytes(int64(stats.StackInuse))).
		Str("sys_total", humanfmt.Bytes(int64(stats.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", stats.NumGC).
		Float64("gc_cpu_pct", stats.GCCPU*100).
		Msg("memory stats")
}

func (t *Tracker) observe(stats Stats) (phase string, peak uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	return t.phase, t.peakHeap
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) logLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
