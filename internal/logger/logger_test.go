package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json", "cgms-server")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("dropped")
	log.Warn().Str("component", "roster_service").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "cgms-server", line["service"])
	assert.Equal(t, "roster_service", line["component"])
	assert.NotContains(t, line, "caller")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "verbose", "json", "")

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewDebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json", "")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Debug().Msg("here")

	assert.Contains(t, buf.String(), `"caller"`)
}
