package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func Test_ContextHandler(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	testCases := []struct {
		name     string
		ctx      context.Context
		expected map[string]string
		absent   []string
	}{
		{
			name:   "empty context",
			ctx:    context.Background(),
			absent: []string{"trace_id", "span_id", "request_id"},
		},
		{
			name:     "request id",
			ctx:      context.WithValue(context.Background(), middleware.RequestIDKey, "abc"),
			expected: map[string]string{"request_id": "abc"},
			absent:   []string{"trace_id"},
		},
		{
			name: "span and request id",
			ctx: trace.ContextWithSpanContext(
				context.WithValue(context.Background(), middleware.RequestIDKey, "abc"), spanCtx),
			expected: map[string]string{
				"request_id": "abc",
				"trace_id":   traceID.String(),
				"span_id":    spanID.String(),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			var buf bytes.Buffer
			log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

			// when
			log.InfoContext(tc.ctx, "message")

			// then
			record := decode(t, &buf)
			assert.Equal(t, "test", record["component"])
			for k, v := range tc.expected {
				assert.Equal(t, v, record[k], k)
			}
			for _, k := range tc.absent {
				assert.NotContains(t, record, k)
			}
		})
	}
}
