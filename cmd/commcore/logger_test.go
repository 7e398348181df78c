// ABOUTME: Tests for the commcore logger setup
// ABOUTME: Covers level filtering, JSON output and derived attrs on the color handler

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/comm-core/internal/config"
)

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "user", "alice")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "alice", entry["user"])
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug"}, &buf)

	logger.With("component", "core").Debug("applied", "ops", 3)
	logger.Warn("slow")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "DBG applied component=core ops=3")
	assert.Contains(t, lines[1], "WRN slow")
	assert.NotContains(t, lines[1], "component=", "With attrs stay on the derived logger")
}

func TestColorHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "bogus"}, &buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
