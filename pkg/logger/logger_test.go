package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewWithWriter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Str("giveaway_id", "g1").Msg("kept")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "g1", line["giveaway_id"])
	assert.Equal(t, zerolog.WarnLevel, log.Level())
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").Component("scheduler")

	log.Info().Msg("tick")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scheduler", line["component"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	log, err := New("debug", "json", path)
	require.NoError(t, err)
	log.Debug().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "to file", line["message"])
	assert.Equal(t, "giveaway-engine", line["service"])
}

func TestNew_UnwritableOutput(t *testing.T) {
	_, err := New("info", "json", filepath.Join(t.TempDir(), "missing", "engine.log"))
	assert.Error(t, err)
}
