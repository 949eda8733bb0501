package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/scribe/pkg/session"
	"github.com/scribeworks/scribe/pkg/tools"
)

// fakeProvider scripts the two LLM calls of a run. It records the requests
// it saw so tests can assert on what was sent.
type fakeProvider struct {
	decision  *Decision
	decideErr error

	deltas    []string
	streamErr error

	decideReqs []Request
	streamReqs []Request
}

func (f *fakeProvider) Decide(ctx context.Context, req Request) (*Decision, error) {
	f.decideReqs = append(f.decideReqs, req)
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return f.decision, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req Request, emit func(string) error) error {
	f.streamReqs = append(f.streamReqs, req)
	for _, d := range f.deltas {
		if err := emit(d); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *fakeProvider) Provider() string { return "fake" }

func newTestOrchestrator(t *testing.T, provider LLMProvider, toolBaseURL string) (*Orchestrator, *session.Store) {
	t.Helper()

	store, err := session.NewStore(session.Options{Prompts: session.StaticPrompt("You are a content assistant.")})
	require.NoError(t, err)

	registry, err := tools.NewRegistry()
	require.NoError(t, err)

	invoker, err := tools.NewInvoker(registry, tools.InvokerConfig{BaseURL: toolBaseURL})
	require.NoError(t, err)

	orch, err := New(Config{
		Store:    store,
		Registry: registry,
		Invoker:  invoker,
		Provider: provider,
		Logger:   zerolog.Nop(),
		Model:    "test-model",
	})
	require.NoError(t, err)

	return orch, store
}

func collect(t *testing.T, ch <-chan Fragment) []Fragment {
	t.Helper()
	out := []Fragment{}
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func kinds(fragments []Fragment) []FragmentKind {
	out := make([]FragmentKind, len(fragments))
	for i, f := range fragments {
		out[i] = f.Kind
	}
	return out
}

// assertAnswerShape checks the stream invariants shared by both branches:
// the sentinel appears exactly once, after every status and before every
// content fragment, and no error fragment is present.
func assertAnswerShape(t *testing.T, fragments []Fragment) {
	t.Helper()

	sentinelAt := -1
	for i, f := range fragments {
		switch f.Kind {
		case FragmentSentinel:
			require.Equal(t, -1, sentinelAt, "sentinel emitted more than once")
			assert.Equal(t, AnswerSentinel, f.Text)
			sentinelAt = i
		case FragmentStatus:
			assert.Equal(t, -1, sentinelAt, "status fragment after sentinel")
		case FragmentContent:
			assert.NotEqual(t, -1, sentinelAt, "content fragment before sentinel")
		case FragmentError:
			t.Fatalf("unexpected error fragment: %s", f.Text)
		}
	}
	require.NotEqual(t, -1, sentinelAt, "sentinel never emitted")
}

func TestProcessValidation(t *testing.T) {
	provider := &fakeProvider{decision: &Decision{Content: "hi"}}
	orch, _ := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	t.Run("empty prompt", func(t *testing.T) {
		_, err := orch.Process(context.Background(), "s1", "")
		require.Error(t, err)
	})

	t.Run("empty session key", func(t *testing.T) {
		_, err := orch.Process(context.Background(), "", "hello")
		require.Error(t, err)
	})
}

func TestProcessDirectAnswer(t *testing.T) {
	provider := &fakeProvider{
		decision: &Decision{Content: "I can answer this directly."},
		deltas:   []string{"Go is a ", "programming language."},
	}
	orch, store := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	ch, err := orch.Process(context.Background(), "s1", "What is Go?")
	require.NoError(t, err)

	fragments := collect(t, ch)
	assertAnswerShape(t, fragments)

	assert.Equal(t, []FragmentKind{
		FragmentStatus, FragmentSentinel, FragmentContent, FragmentContent,
	}, kinds(fragments))
	assert.Equal(t, "Go is a ", fragments[2].Text)
	assert.Equal(t, "programming language.", fragments[3].Text)

	// Streaming call must not re-offer the tool catalog.
	require.Len(t, provider.decideReqs, 1)
	assert.NotEmpty(t, provider.decideReqs[0].Tools)
	require.Len(t, provider.streamReqs, 1)
	assert.Empty(t, provider.streamReqs[0].Tools)

	// History: system, user, decision. The durable reply is the caller's job.
	history := store.Get("s1").History()
	require.Len(t, history, 3)
	assert.Equal(t, session.RoleSystem, history[0].Role)
	assert.Equal(t, session.RoleUser, history[1].Role)
	assert.Equal(t, "What is Go?", history[1].Content)
	assert.Equal(t, session.RoleAssistant, history[2].Role)
	assert.Empty(t, history[2].ToolCalls)
}

func TestProcessWithTool(t *testing.T) {
	payload := `{"word_count":3,"keyword_density":{"cats":66.6667}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	provider := &fakeProvider{
		decision: &Decision{
			ToolCalls: []session.ToolCall{{
				ID:   "call_1",
				Name: "analyze_seo_keywords",
				Arguments: map[string]interface{}{
					"text":     "cats cats dogs",
					"keywords": []interface{}{"cats"},
				},
			}},
		},
		deltas: []string{"The keyword density of cats is 66.67%."},
	}
	orch, store := newTestOrchestrator(t, provider, server.URL)

	ch, err := orch.Process(context.Background(), "s1", "Analyze this text")
	require.NoError(t, err)

	fragments := collect(t, ch)
	assertAnswerShape(t, fragments)

	assert.Equal(t, []FragmentKind{
		FragmentStatus, FragmentStatus, FragmentStatus, FragmentSentinel, FragmentContent,
	}, kinds(fragments))
	assert.Contains(t, fragments[0].Text, "analyze_seo_keywords")
	assert.Contains(t, fragments[1].Text, payload)

	// The tool message carries the exact serialized payload, correlated to
	// the call id from the decision.
	history := store.Get("s1").History()
	require.Len(t, history, 4)
	assert.Equal(t, session.RoleAssistant, history[2].Role)
	require.Len(t, history[2].ToolCalls, 1)
	assert.Equal(t, session.RoleTool, history[3].Role)
	assert.Equal(t, "call_1", history[3].ToolCallID)
	assert.Equal(t, payload, history[3].Content)
}

func TestProcessSequentialToolOrder(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	provider := &fakeProvider{
		decision: &Decision{
			ToolCalls: []session.ToolCall{
				{ID: "call_1", Name: "web_search", Arguments: map[string]interface{}{"query": "go testing"}},
				{ID: "call_2", Name: "publish_article", Arguments: map[string]interface{}{"title": "t", "content": "c"}},
			},
		},
		deltas: []string{"Done."},
	}
	orch, store := newTestOrchestrator(t, provider, server.URL)

	ch, err := orch.Process(context.Background(), "s1", "Search then publish")
	require.NoError(t, err)
	collect(t, ch)

	mu.Lock()
	assert.Equal(t, []string{"/search", "/publish"}, paths)
	mu.Unlock()

	history := store.Get("s1").History()
	require.Len(t, history, 5)
	assert.Equal(t, "call_1", history[3].ToolCallID)
	assert.Equal(t, "call_2", history[4].ToolCallID)
}

func TestProcessToolFailureStillAnswers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // tool service unreachable

	provider := &fakeProvider{
		decision: &Decision{
			ToolCalls: []session.ToolCall{{
				ID:        "call_1",
				Name:      "web_search",
				Arguments: map[string]interface{}{"query": "anything"},
			}},
		},
		deltas: []string{"I could not reach the search service."},
	}
	orch, store := newTestOrchestrator(t, provider, server.URL)

	ch, err := orch.Process(context.Background(), "s1", "Search the web")
	require.NoError(t, err)

	fragments := collect(t, ch)
	assertAnswerShape(t, fragments)

	// The failure is recorded as an error-shaped tool result, and the run
	// still reaches synthesis.
	history := store.Get("s1").History()
	require.Len(t, history, 4)
	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(history[3].Content), &result))
	assert.NotEmpty(t, result["error"])
	require.Len(t, provider.streamReqs, 1)
}

func TestPreview(t *testing.T) {
	t.Run("short strings pass through", func(t *testing.T) {
		assert.Equal(t, "ok", preview("ok"))
		assert.Equal(t, strings.Repeat("x", PreviewLimit), preview(strings.Repeat("x", PreviewLimit)))
	})

	t.Run("truncates to the character bound", func(t *testing.T) {
		got := preview(strings.Repeat("x", 500))
		assert.Equal(t, PreviewLimit, utf8.RuneCountInString(got))
	})

	t.Run("multi-byte text keeps valid encoding", func(t *testing.T) {
		got := preview(strings.Repeat("好", 120))
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, PreviewLimit, utf8.RuneCountInString(got))
		assert.Equal(t, strings.Repeat("好", PreviewLimit), got)
	})

	t.Run("multi-byte text under the bound is untouched", func(t *testing.T) {
		s := strings.Repeat("é", 60)
		assert.Equal(t, s, preview(s))
	})
}

func TestProcessToolPreviewBounded(t *testing.T) {
	long := `{"data":"` + strings.Repeat("x", 500) + `"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, long)
	}))
	defer server.Close()

	provider := &fakeProvider{
		decision: &Decision{
			ToolCalls: []session.ToolCall{{
				ID:        "call_1",
				Name:      "web_search",
				Arguments: map[string]interface{}{"query": "q"},
			}},
		},
		deltas: []string{"ok"},
	}
	orch, store := newTestOrchestrator(t, provider, server.URL)

	ch, err := orch.Process(context.Background(), "s1", "go")
	require.NoError(t, err)
	fragments := collect(t, ch)

	returned := fragments[1]
	require.Equal(t, FragmentStatus, returned.Kind)
	assert.Contains(t, returned.Text, long[:PreviewLimit])
	assert.NotContains(t, returned.Text, long[:PreviewLimit+1])
	assert.True(t, utf8.ValidString(returned.Text))

	// Preview truncation never touches the durable tool message.
	history := store.Get("s1").History()
	assert.Equal(t, long, history[3].Content)
}

func TestProcessToolPreviewMultibyte(t *testing.T) {
	long := `{"data":"` + strings.Repeat("密度", 100) + `"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, long)
	}))
	defer server.Close()

	provider := &fakeProvider{
		decision: &Decision{
			ToolCalls: []session.ToolCall{{
				ID:        "call_1",
				Name:      "web_search",
				Arguments: map[string]interface{}{"query": "q"},
			}},
		},
		deltas: []string{"ok"},
	}
	orch, _ := newTestOrchestrator(t, provider, server.URL)

	ch, err := orch.Process(context.Background(), "s1", "go")
	require.NoError(t, err)
	fragments := collect(t, ch)

	returned := fragments[1]
	require.Equal(t, FragmentStatus, returned.Kind)
	assert.True(t, utf8.ValidString(returned.Text))
	assert.Contains(t, returned.Text, string([]rune(long)[:PreviewLimit]))
}

func TestProcessSecondRequestSeesEarlierTurns(t *testing.T) {
	provider := &fakeProvider{
		decision: &Decision{Content: "answering"},
		deltas:   []string{"First answer."},
	}
	orch, store := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	ch, err := orch.Process(context.Background(), "s1", "first question")
	require.NoError(t, err)
	collect(t, ch)

	// The durable reply is the caller's to commit.
	sess := store.Get("s1")
	sess.Append(session.Message{Role: session.RoleAssistant, Content: "First answer."})

	ch, err = orch.Process(context.Background(), "s1", "second question")
	require.NoError(t, err)
	collect(t, ch)

	require.Len(t, provider.decideReqs, 2)
	second := provider.decideReqs[1].Messages

	var contents []string
	for _, msg := range second {
		contents = append(contents, msg.Content)
	}
	assert.Contains(t, contents, "first question")
	assert.Contains(t, contents, "First answer.")
	assert.Contains(t, contents, "second question")
}

func TestProcessDecisionFailure(t *testing.T) {
	provider := &fakeProvider{decideErr: errors.New("upstream 500")}
	orch, store := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	ch, err := orch.Process(context.Background(), "s1", "hello")
	require.NoError(t, err)

	fragments := collect(t, ch)
	require.Len(t, fragments, 1)
	assert.Equal(t, FragmentError, fragments[0].Kind)
	assert.Contains(t, fragments[0].Text, "upstream 500")

	// No decision message; the user turn is still recorded.
	history := store.Get("s1").History()
	require.Len(t, history, 2)
	assert.Equal(t, session.RoleUser, history[1].Role)
}

func TestProcessStreamFailure(t *testing.T) {
	provider := &fakeProvider{
		decision:  &Decision{Content: "answering"},
		deltas:    []string{"partial "},
		streamErr: errors.New("connection reset"),
	}
	orch, _ := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	ch, err := orch.Process(context.Background(), "s1", "hello")
	require.NoError(t, err)

	fragments := collect(t, ch)
	require.NotEmpty(t, fragments)

	last := fragments[len(fragments)-1]
	assert.Equal(t, FragmentError, last.Kind)
	assert.Contains(t, last.Text, "connection reset")

	// Partial content still streamed before the terminal error.
	assert.Equal(t, []FragmentKind{
		FragmentStatus, FragmentSentinel, FragmentContent, FragmentError,
	}, kinds(fragments))
}

func TestProcessContextCancelled(t *testing.T) {
	provider := &fakeProvider{
		decision: &Decision{Content: "answering"},
		deltas:   []string{"a", "b", "c"},
	}
	orch, _ := newTestOrchestrator(t, provider, "http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := orch.Process(ctx, "s1", "hello")
	require.NoError(t, err)

	// With the buffer larger than the emission count, a cancelled context
	// still lets buffered sends race; the only guarantee is termination.
	fragments := collect(t, ch)
	assert.LessOrEqual(t, len(fragments), 6)
}
