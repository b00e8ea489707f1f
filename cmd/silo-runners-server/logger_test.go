package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelDebug, parseLevel("Debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewLogHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, LogConfig{Level: "WARNING", Format: "json"}))

	logger.Info("Dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("Cycle failed", "agent_id", "a1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Cycle failed", line["msg"])
	assert.Equal(t, "a1", line["agent_id"])
}

func TestNewLogHandler_TextFallback(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newLogHandler(&buf, LogConfig{Format: "xml"})).Info("Started", "port", 8080)
	assert.Contains(t, buf.String(), "msg=Started")
	assert.Contains(t, buf.String(), "port=8080")
}
