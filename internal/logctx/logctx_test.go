package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	logger := FromContext(nil)

	var buf bytes.Buffer
	testLogger := logger.Output(&buf)
	testLogger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestFromContext_ContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())

	var buf bytes.Buffer
	testLogger := logger.Output(&buf)
	testLogger.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()

	ctx := WithLogger(context.Background(), customLogger)
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer

	//nolint:staticcheck // nil context is part of the contract
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}

	logger := FromContext(ctx)
	logger.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		add  func(context.Context) context.Context
		want string
	}{
		{"field", func(ctx context.Context) context.Context { return WithField(ctx, "offset", 19) }, `"offset":19`},
		{"str", func(ctx context.Context) context.Context { return WithStr(ctx, "phase", "analyze") }, `"phase":"analyze"`},
		{"int", func(ctx context.Context) context.Context { return WithInt(ctx, "worker", 3) }, `"worker":3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := tt.add(WithLogger(context.Background(), zerolog.New(&buf)))
			logger := FromContext(ctx)
			logger.Info().Msg("test")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in output, got: %s", tt.want, buf.String())
			}
		})
	}
}

func TestWithPass(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	logger := FromContext(WithPass(ctx, "reads.fq.gz", "1234"))
	logger.Info().Msg("test")
	out := buf.String()
	if !strings.Contains(out, `"source":"reads.fq.gz"`) || !strings.Contains(out, `"pass_id":"1234"`) {
		t.Errorf("expected source and pass_id, got: %s", out)
	}

	buf.Reset()
	logger = FromContext(WithPass(ctx, "reads.fq", ""))
	logger.Info().Msg("test")
	if strings.Contains(buf.String(), "pass_id") {
		t.Errorf("empty pass ID should be omitted, got: %s", buf.String())
	}
}

func TestSetDefaultLogger(t *testing.T) {
	prev := DefaultLogger()
	defer SetDefaultLogger(prev)

	var buf bytes.Buffer
	SetDefaultLogger(zerolog.New(&buf).With().Str("fallback", "yes").Logger())
	logger := FromContext(context.Background())
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"fallback":"yes"`) {
		t.Errorf("expected fallback logger, got: %s", buf.String())
	}
}

func TestChainedContexts(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithPass(ctx, "a.fq", "p1")
	ctx = WithInt(ctx, "worker", 5)

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"source":"a.fq"`) {
		t.Errorf("expected source field, got: %s", output)
	}
	if !strings.Contains(output, `"worker":5`) {
		t.Errorf("expected worker field, got: %s", output)
	}
}
