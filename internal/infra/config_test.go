package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadConfigFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
llm:
  api_key: sk-test
engine:
  concurrency: 8
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, 1000, cfg.Engine.HistoryBufferSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.HistoryFlushInterval)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigSecretsFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: warn\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
}

func TestConfigValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{Port: 0},
		LLM:    LLMConfig{Temperature: 3, RatePerSecond: 1},
		Engine: EngineConfig{Concurrency: 0, HistoryBufferSize: 10, HistoryBatchSize: 20},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
