package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/scribeworks/scribe/internal/observability"
)

// DefaultTimeout is the hard cap on a single tool call. There is no retry;
// one attempt per call.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one tool invocation. Failures are carried as
// data, never returned as errors past the invoker boundary.
type Result struct {
	OK      bool
	Payload json.RawMessage
	Err     string
}

// Text serializes the result for folding back into the conversation.
// Errors take the same JSON shape the remote tools use.
func (r Result) Text() string {
	if r.OK {
		return string(r.Payload)
	}
	data, err := json.Marshal(map[string]string{"error": r.Err})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, r.Err)
	}
	return string(data)
}

func errorResult(format string, args ...interface{}) Result {
	return Result{Err: fmt.Sprintf(format, args...)}
}

// InvokerConfig configures an Invoker.
type InvokerConfig struct {
	// BaseURL of the remote tool service. Required.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout per call. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Invoker maps tool calls to HTTP POSTs against the tool service. It is
// stateless and safe for concurrent use.
type Invoker struct {
	registry *Registry
	baseURL  string
	apiKey   string
	client   *http.Client
	logger   zerolog.Logger
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry, cfg InvokerConfig) (*Invoker, error) {
	observability.EnsureRegistered()

	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tool service base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Invoker{
		registry: registry,
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}, nil
}

// Invoke resolves the tool name, validates the arguments, and executes the
// call. Unknown names and invalid arguments fail locally without touching
// the network. Transport failures and non-2xx responses come back as error
// results for the model to narrate; they are never fatal to the caller.
func (inv *Invoker) Invoke(ctx context.Context, name string, arguments map[string]interface{}) Result {
	start := time.Now()
	result := inv.invoke(ctx, name, arguments)
	observability.RecordToolInvocation(name, time.Since(start), result.OK)
	return result
}

func (inv *Invoker) invoke(ctx context.Context, name string, arguments map[string]interface{}) Result {
	start := time.Now()

	args, err := inv.registry.DecodeArgs(name, arguments)
	if err != nil {
		inv.logger.Warn().Str("tool", name).Err(err).Msg("Tool call rejected before dispatch")
		return errorResult("%v", err)
	}

	def, _ := inv.registry.Lookup(name)

	body, err := json.Marshal(args)
	if err != nil {
		return errorResult("encoding request for %s: %v", name, err)
	}

	url := inv.baseURL + def.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errorResult("building request for %s: %v", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if inv.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+inv.apiKey)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		inv.logger.Warn().Str("tool", name).Err(err).Msg("Tool call failed")
		return errorResult("calling tool %s: %v", name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult("reading response from %s: %v", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		inv.logger.Warn().
			Str("tool", name).
			Int("status", resp.StatusCode).
			Msg("Tool returned non-2xx status")
		return errorResult("tool %s returned status %d", name, resp.StatusCode)
	}

	if !json.Valid(payload) {
		return errorResult("tool %s returned a non-JSON response", name)
	}

	inv.logger.Debug().
		Str("tool", name).
		Dur("duration", time.Since(start)).
		Msg("Tool call completed")

	return Result{OK: true, Payload: json.RawMessage(payload)}
}
