// Package logging holds the process-wide zerolog logger for fastq-stats and
// builders for its structured completion events.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger

	// prettyMode adds human-readable "_h" companions to numeric fields.
	prettyMode atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. debug lowers the level to Debug; human
// switches to a console writer and enables pretty mode.
func Init(debug bool, human bool) {
	InitWriter(os.Stderr, debug, human)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: w}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
	SetPrettyMode(human)
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the global logger. Tests use it to capture output.
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// SetPrettyMode toggles human-readable companion fields.
func SetPrettyMode(on bool) {
	prettyMode.Store(on)
}

// IsPrettyMode reports whether human-readable companion fields are emitted.
func IsPrettyMode() bool {
	return prettyMode.Load()
}
