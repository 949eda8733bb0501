package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/config"
)

var configureFlags struct {
	llmProvider  string
	llmAPIKey    string
	llmBaseURL   string
	llmModel     string
	toolsBaseURL string
	toolsAPIKey  string
	port         int
	personaFile  string
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the server configuration file",
	Long: `Write the server configuration file from the given flags. Existing
settings are preserved; only flags provided on the command line are
changed. The result is validated before it is saved.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)

	flags := configureCmd.Flags()
	flags.StringVar(&configureFlags.llmProvider, "llm-provider", "", "LLM provider (openai, anthropic)")
	flags.StringVar(&configureFlags.llmAPIKey, "llm-api-key", "", "LLM API key")
	flags.StringVar(&configureFlags.llmBaseURL, "llm-base-url", "", "LLM base URL for OpenAI-compatible endpoints")
	flags.StringVar(&configureFlags.llmModel, "llm-model", "", "model identifier")
	flags.StringVar(&configureFlags.toolsBaseURL, "tools-base-url", "", "remote tool service base URL")
	flags.StringVar(&configureFlags.toolsAPIKey, "tools-api-key", "", "remote tool service API key")
	flags.IntVar(&configureFlags.port, "port", 0, "HTTP server port")
	flags.StringVar(&configureFlags.personaFile, "persona-file", "", "path to a system prompt file")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading existing config: %w", err)
	}

	apply := map[string]func(){
		"llm-provider":   func() { cfg.LLM.Provider = configureFlags.llmProvider },
		"llm-api-key":    func() { cfg.LLM.APIKey = configureFlags.llmAPIKey },
		"llm-base-url":   func() { cfg.LLM.BaseURL = configureFlags.llmBaseURL },
		"llm-model":      func() { cfg.LLM.Model = configureFlags.llmModel },
		"tools-base-url": func() { cfg.Tools.BaseURL = configureFlags.toolsBaseURL },
		"tools-api-key":  func() { cfg.Tools.APIKey = configureFlags.toolsAPIKey },
		"port":           func() { cfg.Server.Port = configureFlags.port },
		"persona-file":   func() { cfg.Persona.File = configureFlags.personaFile },
	}
	for name, set := range apply {
		if cmd.Flags().Changed(name) {
			set()
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "Start the server with: scribed serve")

	return nil
}
