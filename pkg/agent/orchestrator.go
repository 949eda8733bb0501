package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/scribeworks/scribe/internal/observability"
	"github.com/scribeworks/scribe/pkg/session"
	"github.com/scribeworks/scribe/pkg/tools"
)

// DefaultFragmentBuffer is the capacity of the fragment channel. A slow
// consumer applies backpressure to the loop once the buffer fills.
const DefaultFragmentBuffer = 32

// Orchestrator drives the reason-act-reason loop for one request at a time
// per call. It owns no transport; callers consume the fragment stream and
// commit the durable reply themselves.
type Orchestrator struct {
	store    *session.Store
	registry *tools.Registry
	invoker  *tools.Invoker
	provider LLMProvider
	logger   zerolog.Logger

	model       string
	temperature float64
	maxTokens   int
	bufferSize  int
}

// Config holds orchestrator configuration.
type Config struct {
	Store    *session.Store
	Registry *tools.Registry
	Invoker  *tools.Invoker
	Provider LLMProvider
	Logger   zerolog.Logger

	Model          string
	Temperature    float64
	MaxTokens      int
	FragmentBuffer int
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("tool invoker is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("LLM provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.FragmentBuffer <= 0 {
		cfg.FragmentBuffer = DefaultFragmentBuffer
	}

	return &Orchestrator{
		store:       cfg.Store,
		registry:    cfg.Registry,
		invoker:     cfg.Invoker,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		bufferSize:  cfg.FragmentBuffer,
	}, nil
}

// Process appends the user prompt to the session and runs one pass of the
// loop. The returned channel carries fragments in emission order and is
// closed when the run finishes; a FragmentError is the final fragment when
// an upstream LLM call fails. The caller is responsible for appending the
// concatenated content fragments back to the session as the assistant
// reply, and must not do so after a FragmentError.
func (o *Orchestrator) Process(ctx context.Context, sessionKey, prompt string) (<-chan Fragment, error) {
	sess, err := o.store.GetOrCreate(sessionKey)
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	sess.Append(session.Message{Role: session.RoleUser, Content: prompt})

	ch := make(chan Fragment, o.bufferSize)
	go func() {
		defer close(ch)
		o.run(ctx, sess, ch)
	}()

	return ch, nil
}

// emit pushes a fragment, yielding to cancellation. Returns false when the
// context is done, which aborts the run.
func (o *Orchestrator) emit(ctx context.Context, ch chan<- Fragment, f Fragment) bool {
	select {
	case ch <- f:
		observability.RecordFragment(string(f.Kind))
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) status(ctx context.Context, ch chan<- Fragment, format string, args ...interface{}) bool {
	return o.emit(ctx, ch, Fragment{Kind: FragmentStatus, Text: fmt.Sprintf(format, args...)})
}

func (o *Orchestrator) fail(ctx context.Context, ch chan<- Fragment, err error, stage string) {
	o.logger.Error().Err(err).Str("stage", stage).Msg("Upstream LLM call failed")
	observability.RecordStreamError()
	o.emit(ctx, ch, Fragment{Kind: FragmentError, Text: fmt.Sprintf("%s failed: %v", stage, err)})
}

func (o *Orchestrator) request(messages []session.Message, defs []tools.Definition) Request {
	return Request{
		Model:       o.model,
		Messages:    messages,
		Tools:       defs,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, ch chan<- Fragment) {
	start := time.Now()
	logger := o.logger.With().Str("session_key", sess.Key).Logger()
	success := false
	defer func() {
		observability.RecordAgentRun(o.provider.Provider(), time.Since(start), success)
	}()

	// Deciding: offer the tool catalog, get back text or tool calls.
	decision, err := o.provider.Decide(ctx, o.request(sess.History(), o.registry.Definitions()))
	if err != nil {
		o.fail(ctx, ch, err, "decision request")
		return
	}

	// The decision is recorded durably even when it carries no text: the
	// tool-call ids in it are needed to correlate results.
	sess.Append(session.Message{
		Role:      session.RoleAssistant,
		Content:   decision.Content,
		ToolCalls: decision.ToolCalls,
	})

	if len(decision.ToolCalls) == 0 {
		logger.Debug().Msg("No tools requested, answering directly")
		if !o.status(ctx, ch, "No tools needed, answering directly...") {
			return
		}
		success = o.streamAnswer(ctx, sess, ch)
		return
	}

	logger.Debug().Int("tool_calls", len(decision.ToolCalls)).Msg("Executing requested tools")

	// Acting: strictly sequential, in the order the model emitted the
	// calls. Later calls may assume earlier results are already part of
	// the conversation at synthesis time.
	for _, call := range decision.ToolCalls {
		if !o.status(ctx, ch, "Calling tool %s...", call.Name) {
			return
		}

		result := o.invoker.Invoke(ctx, call.Name, call.Arguments)
		text := result.Text()

		if !o.status(ctx, ch, "Tool %s returned: %s", call.Name, preview(text)) {
			return
		}

		// Failures are folded in exactly like successes; the model is
		// expected to narrate them. The loop never aborts on a tool error.
		sess.Append(session.Message{
			Role:       session.RoleTool,
			ToolCallID: call.ID,
			Content:    text,
		})
	}

	if !o.status(ctx, ch, "Synthesizing the final answer from tool results...") {
		return
	}
	success = o.streamAnswer(ctx, sess, ch)
}

// streamAnswer emits the sentinel and then every content token of the
// final completion in arrival order.
func (o *Orchestrator) streamAnswer(ctx context.Context, sess *session.Session, ch chan<- Fragment) bool {
	if !o.emit(ctx, ch, Fragment{Kind: FragmentSentinel, Text: AnswerSentinel}) {
		return false
	}

	err := o.provider.Stream(ctx, o.request(sess.History(), nil), func(delta string) error {
		if !o.emit(ctx, ch, Fragment{Kind: FragmentContent, Text: delta}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		o.fail(ctx, ch, err, "streaming request")
		return false
	}

	return true
}
