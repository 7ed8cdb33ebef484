package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestProductionLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger("info", "production", &buf)
	require.NoError(t, err)

	WithComponent(log, "httpapi").Info("started", zap.String("addr", ":8080"))
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "httpapi", entry["component"])
	assert.Equal(t, ":8080", entry["addr"])
	assert.Contains(t, entry, "timestamp")
}

func TestDevelopmentLogsConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger("debug", "development", &buf)
	require.NoError(t, err)

	WithRequestID(log, "req-1").Debug("visible")

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, `"request_id": "req-1"`)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
