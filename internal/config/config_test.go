package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Tools.BaseURL = "http://localhost:9000"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.StreamPaceMs)
	assert.Equal(t, 1024, cfg.Sessions.Max)
	assert.Equal(t, "@every 5m", cfg.Sessions.CleanupSchedule)
	assert.Equal(t, 30, cfg.Tools.TimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("anthropic provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "anthropic"
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "gemini"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid llm provider")
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.APIKey = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Model = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("missing tools base url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tools.BaseURL = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 70000
		require.Error(t, cfg.Validate())
	})

	t.Run("negative session cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sessions.Max = -1
		require.Error(t, cfg.Validate())
	})
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Tools.APIKey = "tool-secret"

	s := cfg.String()
	assert.False(t, strings.Contains(s, "sk-test"))
	assert.False(t, strings.Contains(s, "tool-secret"))
	assert.Contains(t, s, "***")
}
