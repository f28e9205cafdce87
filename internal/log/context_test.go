package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

func TestContextWithSessionID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		sessionID string
		want      string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			sessionID: "arm-1",
			want:      "arm-1",
		},
		{
			name:      "background context",
			ctx:       context.Background(),
			sessionID: "arm-2",
			want:      "arm-2",
		},
		{
			name:      "empty session ID",
			ctx:       context.Background(),
			sessionID: "",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithSessionID(tt.ctx, tt.sessionID)
			got := SessionIDFromContext(ctx)
			if got != tt.want {
				t.Errorf("SessionIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "nil context",
			ctx:  nil,
			want: "",
		},
		{
			name: "context without request ID",
			ctx:  context.Background(),
			want: "",
		},
		{
			name: "context with wrong type",
			ctx:  context.WithValue(context.Background(), requestIDKey, 123),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequestIDFromContext(tt.ctx)
			if got != tt.want {
				t.Errorf("RequestIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func captureEntry(t *testing.T, fn func(zerolog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(zerolog.New(&buf))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithSessionID(ctx, "arm-1")

	entry := captureEntry(t, func(l zerolog.Logger) {
		logger := WithContext(ctx, l)
		logger.Info().Msg("tick")
	})

	if entry[FieldRequestID] != "req-123" {
		t.Errorf("expected request_id req-123, got %v", entry[FieldRequestID])
	}
	if entry[FieldSessionID] != "arm-1" {
		t.Errorf("expected session_id arm-1, got %v", entry[FieldSessionID])
	}
}

func TestWithContext_EmptyContextKeepsLogger(t *testing.T) {
	entry := captureEntry(t, func(l zerolog.Logger) {
		logger := WithContext(context.Background(), l)
		logger.Info().Msg("plain")
	})
	if _, ok := entry[FieldSessionID]; ok {
		t.Error("did not expect session_id on a bare context")
	}
}

func TestWithContext_TraceFields(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	entry := captureEntry(t, func(l zerolog.Logger) {
		logger := WithContext(ctx, l)
		logger.Info().Msg("with trace")
	})

	if entry[FieldTraceID] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id %v", entry[FieldTraceID])
	}
	if entry[FieldSpanID] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id %v", entry[FieldSpanID])
	}
}

func TestConfigure_AttachesServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "unit", Version: "v0.0.1"})
	defer Configure(Config{})

	l := WithComponent("registry")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["service"] != "unit" || entry["version"] != "v0.0.1" {
		t.Errorf("unexpected service/version fields: %v", entry)
	}
	if entry[FieldComponent] != "registry" {
		t.Errorf("expected component registry, got %v", entry[FieldComponent])
	}
}

func TestDerive(t *testing.T) {
	logger1 := Derive(nil)
	if logger1.GetLevel() > zerolog.PanicLevel {
		t.Error("Expected valid logger from Derive with nil builder")
	}

	logger2 := Derive(func(ctx *zerolog.Context) {
		ctx.Str("custom_field", "test_value")
	})
	if logger2.GetLevel() > zerolog.PanicLevel {
		t.Error("Expected valid logger from Derive with custom builder")
	}
}

func TestSetLevel_RejectsUnknown(t *testing.T) {
	if err := SetLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := SetLevel("info"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
