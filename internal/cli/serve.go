package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/config"
	"github.com/scribeworks/scribe/internal/httpd"
	"github.com/scribeworks/scribe/internal/logger"
	"github.com/scribeworks/scribe/pkg/agent"
	"github.com/scribeworks/scribe/pkg/gateway"
	"github.com/scribeworks/scribe/pkg/persona"
	"github.com/scribeworks/scribe/pkg/session"
	"github.com/scribeworks/scribe/pkg/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent server",
	Long: `Run the agent server in the foreground. The server accepts chat
requests over HTTP, streams progress and answers, and exposes health,
metrics and observer endpoints. SIGINT or SIGTERM triggers a graceful
shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: true,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.With().Str("service", "scribed").Logger()

	log.Info().Str("version", version).Msg("Starting scribed")

	personaManager, err := persona.New(cfg.Persona.File, log)
	if err != nil {
		return fmt.Errorf("loading persona: %w", err)
	}
	if cfg.Persona.File != "" {
		if err := personaManager.Watch(); err != nil {
			return fmt.Errorf("watching persona file: %w", err)
		}
	}
	defer personaManager.Stop()

	store, err := session.NewStore(session.Options{
		Prompts:     personaManager,
		MaxSessions: cfg.Sessions.Max,
		TTL:         time.Duration(cfg.Sessions.TTLMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	cleanup, err := session.NewCleanup(store, cfg.Sessions.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("creating session cleanup: %w", err)
	}
	if err := cleanup.Start(); err != nil {
		return fmt.Errorf("starting session cleanup: %w", err)
	}
	defer cleanup.Stop()

	registry, err := tools.NewRegistry()
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	invoker, err := tools.NewInvoker(registry, tools.InvokerConfig{
		BaseURL: cfg.Tools.BaseURL,
		APIKey:  cfg.Tools.APIKey,
		Timeout: time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating tool invoker: %w", err)
	}

	provider, err := agent.NewProvider(agent.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}

	orchestrator, err := agent.New(agent.Config{
		Store:       store,
		Registry:    registry,
		Invoker:     invoker,
		Provider:    provider,
		Logger:      log,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	broadcaster := gateway.NewBroadcaster(log)

	server, err := httpd.NewServer(httpd.ServerOptions{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		StreamPace: time.Duration(cfg.Server.StreamPaceMs) * time.Millisecond,
	}, orchestrator, store, broadcaster, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		if err := server.Stop(); err != nil {
			return err
		}
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
