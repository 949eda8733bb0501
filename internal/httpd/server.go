// Package httpd is the HTTP front of the agent: it accepts chat requests,
// renders the fragment stream as a chunked plain-text response, and hosts
// the health, metrics and observer endpoints.
package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/scribeworks/scribe/internal/observability"
	"github.com/scribeworks/scribe/pkg/agent"
	"github.com/scribeworks/scribe/pkg/gateway"
	"github.com/scribeworks/scribe/pkg/session"
)

// DefaultStreamPace is the cooperative delay between flushed fragments.
const DefaultStreamPace = 10 * time.Millisecond

// Processor runs one agent pass and returns its fragment stream.
type Processor interface {
	Process(ctx context.Context, sessionKey, prompt string) (<-chan agent.Fragment, error)
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Host string
	Port int

	// StreamPace is the delay applied after each flushed fragment. Zero
	// means DefaultStreamPace; negative disables pacing.
	StreamPace time.Duration
}

// Server is the chat HTTP server.
type Server struct {
	options     ServerOptions
	processor   Processor
	store       *session.Store
	broadcaster *gateway.Broadcaster
	logger      zerolog.Logger

	server    *http.Server
	startTime time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// NewServer creates the HTTP server. The broadcaster is optional; when nil
// no observer feed is served.
func NewServer(options ServerOptions, processor Processor, store *session.Store, broadcaster *gateway.Broadcaster, logger zerolog.Logger) (*Server, error) {
	observability.EnsureRegistered()

	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.StreamPace == 0 {
		options.StreamPace = DefaultStreamPace
	}

	return &Server{
		options:     options,
		processor:   processor,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Handler returns the route table, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	if s.broadcaster != nil {
		mux.HandleFunc("/events", s.broadcaster.HandleWS)
	}
	return mux
}

// Start runs the server until Stop or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting chat server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server, letting in-flight streams drain.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down chat server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown chat server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

type healthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime_seconds"`
	Sessions int     `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startTime).Seconds(),
		Sessions: s.store.Count(),
	})
}

// mintSessionKey creates a session id for callers that did not supply one.
func mintSessionKey() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the entropy source does; fall back to a
		// timestamp-derived key rather than refusing the request.
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return id
}
