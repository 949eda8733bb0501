package httpd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scribeworks/scribe/pkg/agent"
	"github.com/scribeworks/scribe/pkg/session"
)

type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// handleChat runs one agent pass and streams the fragments as they arrive.
// Status lines and the answer sentinel frame the raw answer tokens; an
// error line terminates a stream that failed upstream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionKey := req.SessionID
	if sessionKey == "" {
		sessionKey = mintSessionKey()
	}
	requestID := uuid.NewString()

	logger := s.logger.With().
		Str("request_id", requestID).
		Str("session_key", sessionKey).
		Logger()

	fragments, err := s.processor.Process(r.Context(), sessionKey, req.Prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("Chat request rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Session-ID", sessionKey)
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	var answer strings.Builder
	sawError := false
	count := 0

	for fragment := range fragments {
		count++
		if s.broadcaster != nil {
			s.broadcaster.PublishFragment(sessionKey, string(fragment.Kind), fragment.Text)
		}

		switch fragment.Kind {
		case agent.FragmentStatus:
			fmt.Fprintf(w, "status: %s\n", fragment.Text)
		case agent.FragmentSentinel:
			fmt.Fprint(w, fragment.Text)
		case agent.FragmentContent:
			fmt.Fprint(w, fragment.Text)
			answer.WriteString(fragment.Text)
		case agent.FragmentError:
			fmt.Fprintf(w, "\nerror: %s\n", fragment.Text)
			sawError = true
		}
		flusher.Flush()

		// Cooperative pacing keeps a fast producer from starving the
		// consumer of flush opportunities.
		if s.options.StreamPace > 0 {
			time.Sleep(s.options.StreamPace)
		}
	}

	// The reply becomes part of the conversation only when the stream ran
	// to completion; a failed stream commits nothing.
	if !sawError && answer.Len() > 0 {
		if sess := s.store.Get(sessionKey); sess != nil {
			sess.Append(session.Message{
				Role:    session.RoleAssistant,
				Content: answer.String(),
			})
		}
	}

	logger.Info().
		Int("fragments", count).
		Bool("failed", sawError).
		Dur("duration", time.Since(start)).
		Msg("Chat request completed")
}
