package config

import (
	"encoding/json"
	"fmt"
)

// Config is the full scribed configuration.
type Config struct {
	// LLM provider settings
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Remote tool service settings
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// HTTP server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Session store settings
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Persona settings
	Persona PersonaConfig `json:"persona" mapstructure:"persona"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"` // optional, OpenAI-compatible endpoints
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// ToolsConfig points at the remote tool service.
type ToolsConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	StreamPaceMs int    `json:"stream_pace_ms" mapstructure:"stream_pace_ms"`
}

// SessionsConfig holds session store settings.
type SessionsConfig struct {
	Max             int    `json:"max" mapstructure:"max"`
	TTLMinutes      int    `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
}

// PersonaConfig holds persona settings.
type PersonaConfig struct {
	// File is an optional path to a system prompt file. When set, the file
	// is watched and reloaded on change.
	File string `json:"file" mapstructure:"file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			StreamPaceMs: 10,
		},
		Sessions: SessionsConfig{
			Max:             1024,
			TTLMinutes:      1440,
			CleanupSchedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// String returns a JSON representation of the config with the secrets
// blanked out.
func (c *Config) String() string {
	clone := *c
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "***"
	}
	if clone.Tools.APIKey != "" {
		clone.Tools.APIKey = "***"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("invalid llm provider %s (must be: openai, anthropic)", c.LLM.Provider)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.Tools.BaseURL == "" {
		return fmt.Errorf("tools base_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Sessions.Max < 0 {
		return fmt.Errorf("sessions max cannot be negative")
	}
	if c.Sessions.TTLMinutes < 0 {
		return fmt.Errorf("sessions ttl_minutes cannot be negative")
	}

	return nil
}
