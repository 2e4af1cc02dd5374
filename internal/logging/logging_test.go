package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"err":     slog.LevelError,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, "level %q", in)
		assert.Equal(t, want, got, "level %q", in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	lg, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	require.NoError(t, err)

	lg.Info("hidden")
	lg.Warn("rate limit exceeded", "key", "10.0.0.1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "rate limit exceeded", line["msg"])
	assert.Equal(t, "10.0.0.1", line["key"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}
