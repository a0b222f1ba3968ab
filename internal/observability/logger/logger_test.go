package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestPurpose: Validates that the JSON logger carries trace and span ids from the active span.
// Scope: Unit Test
// Expected: trace_id and span_id match the span; domain attrs are present.
// Test Case ID: LOG-01
func TestInitLogger_TraceContext(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	log := InitLogger(Config{Level: "debug", Format: "json", ServiceName: "farmgate", Output: &buf})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "decision")
	log.InfoContext(ctx, "authorization decided", PrincipalID(7), TenantID(100), Capability("view-livestock"), Allowed(true))
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
	assert.Equal(t, "farmgate", rec["service"])
	assert.Equal(t, float64(100), rec["tenant_id"])
	assert.Equal(t, true, rec["allowed"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

// TestPurpose: Validates that the fanout handler delivers to every enabled handler.
// Scope: Unit Test
// Expected: Both buffers receive the warn record; only the debug-level one receives the debug record.
// Test Case ID: LOG-02
func TestFanoutHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	l := slog.New(h).With(Component("test"))
	l.Debug("quiet")
	l.Warn("loud", Reason("wrong_tenant"))

	assert.Contains(t, a.String(), "quiet")
	assert.NotContains(t, b.String(), "quiet")
	assert.Contains(t, b.String(), "reason=wrong_tenant")
	assert.Contains(t, b.String(), "component=test")
}
