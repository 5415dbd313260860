package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").With("component", "hub")

	log.Debug("hidden")
	log.Info("Subscriber dropped", "session_id", "s1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Subscriber dropped", entry["msg"])
	assert.Equal(t, "hub", entry["component"])
	assert.Equal(t, "s1", entry["session_id"])
}

func TestNopDiscards(t *testing.T) {
	log := Nop().With("k", "v")
	assert.NotPanics(t, func() { log.Info("ignored", "a", 1) })
}
