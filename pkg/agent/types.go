package agent

import (
	"unicode/utf8"

	"github.com/scribeworks/scribe/pkg/session"
	"github.com/scribeworks/scribe/pkg/tools"
)

// FragmentKind distinguishes the units of the outgoing stream.
type FragmentKind string

const (
	// FragmentStatus is transient progress narration, never part of the
	// durable reply.
	FragmentStatus FragmentKind = "status"

	// FragmentSentinel marks the boundary between status narration and
	// answer content. Emitted exactly once per request.
	FragmentSentinel FragmentKind = "sentinel"

	// FragmentContent is answer text. The concatenation of all content
	// fragments is the durable assistant reply.
	FragmentContent FragmentKind = "content"

	// FragmentError terminates a stream that failed upstream. No durable
	// reply should be committed after seeing one.
	FragmentError FragmentKind = "error"
)

// AnswerSentinel is the literal marker emitted before the first content
// fragment.
const AnswerSentinel = "ANSWER:"

// PreviewLimit bounds the length of tool-result previews in status
// fragments.
const PreviewLimit = 100

// Fragment is one unit of the stream produced by a run.
type Fragment struct {
	Kind FragmentKind `json:"kind"`
	Text string       `json:"text"`
}

// Request carries one LLM call: the full message sequence plus, for
// decision calls, the tool catalog.
type Request struct {
	Model       string
	Messages    []session.Message
	Tools       []tools.Definition
	Temperature float64
	MaxTokens   int
}

// Decision is the model's answer to a decision call: either plain text or
// a non-empty list of tool calls.
type Decision struct {
	Content   string
	ToolCalls []session.ToolCall
	Usage     *TokenUsage
}

// TokenUsage tracks token consumption of a single call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// preview returns at most PreviewLimit characters of s. Truncation is on
// rune boundaries so multi-byte text never yields invalid UTF-8.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLimit])
}
