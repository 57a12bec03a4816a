// ABOUTME: Tests for the colorized slog handler
// ABOUTME: Covers level filtering, group-qualified attr keys, and shared output

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	color.NoColor = true
	var buf bytes.Buffer
	return slog.New(newColorHandler(&buf, level)), &buf
}

func TestColorHandler_WritesMessageAndAttrs(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelDebug)

	logger.Info("backend listening", "addr", ":8080")

	out := buf.String()
	assert.Contains(t, out, "INF backend listening")
	assert.Contains(t, out, "addr=:8080")
}

func TestColorHandler_FiltersBelowLevel(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelWarn)

	logger.Debug("noisy")
	logger.Info("still noisy")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "noisy")
	assert.Contains(t, out, "WRN kept")
}

func TestColorHandler_QualifiesGroupedAttrs(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelDebug)

	logger = logger.With("component", "server").WithGroup("req").With("id", "42")
	logger.Info("handled", "path", "/ws/chat")

	out := buf.String()
	assert.Contains(t, out, "component=server")
	assert.Contains(t, out, "req.id=42")
	assert.Contains(t, out, "req.path=/ws/chat")
}

func TestColorHandler_DerivedHandlersShareOutput(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelDebug)

	logger.With("component", "a").Info("first")
	logger.With("component", "b").Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=a")
	assert.Contains(t, lines[1], "component=b")
}

func TestSetup_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := Setup("chatty", "text")

	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}
