package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_newLogger_addsRequestID(t *testing.T) {
	// given
	var buf bytes.Buffer
	log := newLogger(&buf, slog.LevelInfo)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	// when
	log.InfoContext(ctx, "hello", "component", "test")
	log.DebugContext(ctx, "filtered out")

	// then
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "req-42", record["request_id"])
	assert.Equal(t, "test", record["component"])
	assert.NotContains(t, record, "trace_id")
}
