package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/scribe/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := GetRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigure(t *testing.T) {
	t.Run("rejects incomplete configuration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scribe.json")

		// Defaults alone carry no API key, so validation must refuse to
		// write the file.
		t.Setenv("SCRIBE_LLM_API_KEY", "")
		t.Setenv("SCRIBE_TOOLS_BASE_URL", "")

		_, err := runCommand(t, "configure", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("writes flags over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scribe.json")

		out, err := runCommand(t, "configure",
			"--config", path,
			"--llm-api-key", "sk-configured",
			"--llm-model", "gpt-4o",
			"--tools-base-url", "http://tools:9000",
			"--port", "9191",
		)
		require.NoError(t, err)
		assert.Contains(t, out, path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-configured", cfg.LLM.APIKey)
		assert.Equal(t, "gpt-4o", cfg.LLM.Model)
		assert.Equal(t, "http://tools:9000", cfg.Tools.BaseURL)
		assert.Equal(t, 9191, cfg.Server.Port)

		// Untouched settings keep their defaults.
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, 10, cfg.Server.StreamPaceMs)
	})

	t.Run("preserves existing settings on rerun", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scribe.json")

		_, err := runCommand(t, "configure",
			"--config", path,
			"--llm-api-key", "sk-first",
			"--tools-base-url", "http://tools:9000",
		)
		require.NoError(t, err)

		_, err = runCommand(t, "configure",
			"--config", path,
			"--llm-model", "claude-sonnet-4-5",
			"--llm-provider", "anthropic",
			"--llm-api-key", "sk-first",
			"--tools-base-url", "http://tools:9000",
		)
		require.NoError(t, err)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-first", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	})
}
