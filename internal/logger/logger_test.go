package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(Config{Level: "warn"}, &buf))
	t.Cleanup(func() { _ = InitWriter(Config{}, &bytes.Buffer{}) })

	log := WithComponent("engine")
	log.Info().Msg("hidden")
	log.Warn().Str("device", "core-sw1").Msg("connect failed")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "core-sw1", entry["device"])
	assert.Equal(t, "connect failed", entry["message"])
}

func TestDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(Config{Level: "error", Debug: true}, &buf))
	t.Cleanup(func() { _ = InitWriter(Config{}, &bytes.Buffer{}) })

	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestInitErrors(t *testing.T) {
	assert.Error(t, InitWriter(Config{Level: "loud"}, &bytes.Buffer{}))
	assert.Error(t, InitWriter(Config{Format: "xml"}, &bytes.Buffer{}))
	assert.Error(t, Init(Config{Output: "syslog"}))
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(Config{Format: "console"}, &buf))
	t.Cleanup(func() { _ = InitWriter(Config{}, &bytes.Buffer{}) })

	log := GetLogger()
	log.Info().Msg("crawl started")
	assert.Contains(t, buf.String(), "crawl started")
	assert.NotContains(t, buf.String(), `"message"`)
}
