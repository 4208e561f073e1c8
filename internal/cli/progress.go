package cli

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/eunmann/fastq-stats/pkg/pipeline"
)

// progressEvery is the record interval between bar updates when --progress
// is set.
const progressEvery = 10_000

// progress draws one bar for all passes of a command. With a single source
// of known size it tracks bytes; otherwise it spins and counts reads.
type progress struct {
	bar     *progressbar.ProgressBar
	byBytes bool

	mu   sync.Mutex
	last map[string]int64
}

func newProgress(w io.Writer, enabled bool, size int64) *progress {
	if !enabled {
		return &progress{}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionThrottle(250 * time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	}

	p := &progress{last: make(map[string]int64)}
	if size > 0 {
		p.byBytes = true
		opts = append(opts,
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
		)
		p.bar = progressbar.NewOptions64(size, opts...)
	} else {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetItsString("reads"),
		)
		p.bar = progressbar.NewOptions64(-1, opts...)
	}
	return p
}

// observe is a pipeline.Options.OnProgress callback. Passes may report
// concurrently; each contributes the delta since its previous report.
func (p *progress) observe(pr pipeline.Progress) {
	if p.bar == nil {
		return
	}
	cur := pr.Records
	if p.byBytes {
		cur = pr.BytesRead
	}

	p.mu.Lock()
	delta := cur - p.last[pr.Source]
	p.last[pr.Source] = cur
	p.mu.Unlock()

	if delta > 0 {
		_ = p.bar.Add64(delta)
	}
}

func (p *progress) enabled() bool {
	return p.bar != nil
}

func (p *progress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
