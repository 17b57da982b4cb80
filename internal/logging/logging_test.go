package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Config{Format: "json", Level: "info"})
	l.Debug("hidden")
	l.Info("visible", "batch", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.EqualValues(t, 3, rec["batch"])
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationID(ctx))

	id := GenerateCorrelationID()
	assert.Len(t, id, 16)
	assert.Equal(t, id, CorrelationID(WithCorrelationID(ctx, id)))
}
