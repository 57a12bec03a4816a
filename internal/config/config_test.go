// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, env expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ws://localhost:8765/ws/chat", cfg.Backend.WSURL)
	assert.Equal(t, "http://localhost:8765", cfg.Backend.APIURL)
	assert.Equal(t, 2*time.Second, cfg.Feedback.PromptDelay)
	assert.Equal(t, 40, cfg.Chat.HistoryLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
backend:
  ws_url: ws://assistant.internal/ws/chat
  api_url: http://assistant.internal
chat:
  fallback_error_text: "Try again later."
  history_limit: 10
feedback:
  prompt_delay: 5s
logging:
  level: debug
  format: json
server:
  addr: ":9000"
  database_path: /var/lib/advisor/advisor.db
  top_k: 3
  chunk_delay: 10ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://assistant.internal/ws/chat", cfg.Backend.WSURL)
	assert.Equal(t, "Try again later.", cfg.Chat.FallbackErrorText)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Feedback.PromptDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Server.TopK)
	assert.Equal(t, 10*time.Millisecond, cfg.Server.ChunkDelay)
}

func TestLoad_AppliesDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, `
backend:
  ws_url: ws://somewhere/ws/chat
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://somewhere/ws/chat", cfg.Backend.WSURL)
	assert.Equal(t, "http://localhost:8765", cfg.Backend.APIURL)
	assert.Equal(t, 2*time.Second, cfg.Feedback.PromptDelay)
	assert.Equal(t, ":8765", cfg.Server.Addr)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ADVISOR_TEST_HOST", "backend.example.com")

	path := writeConfig(t, `
backend:
  ws_url: ws://${ADVISOR_TEST_HOST}/ws/chat
  api_url: http://${ADVISOR_TEST_HOST}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://backend.example.com/ws/chat", cfg.Backend.WSURL)
	assert.Equal(t, "http://backend.example.com", cfg.Backend.APIURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
feedback:
  prompt_delay: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt_delay")
}

func TestLoad_InvalidLoggingFormat(t *testing.T) {
	path := writeConfig(t, `
logging:
  format: xml
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
