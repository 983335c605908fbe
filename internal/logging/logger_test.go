package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := New("prod", "debug", &buf)
	logger.Debug().Str("room", "general").Msg("joined")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "debug", entry["level"])
	require.Equal(t, "general", entry["room"])
	require.Equal(t, "joined", entry["message"])
	require.Contains(t, entry, "time")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("prod", "loud", &buf)
	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Info().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNewDevUsesConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New("dev", "info", &buf)
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
