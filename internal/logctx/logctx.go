// Package logctx carries a zerolog logger through context.Context.
//
// The CLI attaches the process logger once; each pass then enriches it with
// the source name and pass ID so that every line a worker logs can be traced
// back to the file being analyzed:
//
//	ctx = logctx.WithLogger(ctx, *logging.L())
//	ctx = logctx.WithPass(ctx, source, passID)
//	log := logctx.FromContext(ctx)
//	log.Info().Msg("pass started")
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none: JSON to
// stderr with timestamps.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger overrides the fallback logger. Call it during startup only;
// it is not safe to race with FromContext.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or DefaultLogger. It never
// returns a zero-value logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithField adds an arbitrary field to the context logger.
func WithField(ctx context.Context, key string, value any) context.Context {
	logger := FromContext(ctx).With().Interface(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithStr adds a string field to the context logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt adds an int field to the context logger.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithPass tags the context logger with the source being analyzed and, when
// non-empty, the pass ID.
func WithPass(ctx context.Context, source, passID string) context.Context {
	lc := FromContext(ctx).With().Str("source", source)
	if passID != "" {
		lc = lc.Str("pass_id", passID)
	}
	return WithLogger(ctx, lc.Logger())
}
