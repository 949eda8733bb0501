package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scribeworks/scribe/internal/observability"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request by the model to invoke a named tool.
// It is created during the decision step and consumed exactly once.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is a single conversation turn. Assistant messages that request
// tool calls may carry empty content; tool messages carry the correlation
// id of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Session owns the ordered message history for one conversation.
// Appends are serialized by a per-session mutex.
type Session struct {
	Key string

	mu         sync.Mutex
	messages   []Message
	createdAt  time.Time
	lastActive time.Time
}

// Append adds a message to the end of the history.
func (s *Session) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.lastActive = time.Now()
}

// History returns a copy of the message sequence in creation order.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// LastActive returns the time of the most recent append.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// PromptSource supplies the system prompt used to seed new sessions.
type PromptSource interface {
	Prompt() string
}

// StaticPrompt is a PromptSource wrapping a fixed string.
type StaticPrompt string

// Prompt implements PromptSource.
func (p StaticPrompt) Prompt() string { return string(p) }

// Store maps session keys to sessions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	prompts     PromptSource
	maxSessions int
	ttl         time.Duration
}

// Options configures a Store.
type Options struct {
	// Prompts supplies the system message for new sessions. Required.
	Prompts PromptSource

	// MaxSessions caps the number of live sessions. When the cap is
	// reached the least recently active session is evicted to make room.
	// Zero means the default of 1024.
	MaxSessions int

	// TTL is how long an idle session survives before EvictIdle removes
	// it. Zero means the default of 24h.
	TTL time.Duration
}

const (
	defaultMaxSessions = 1024
	defaultTTL         = 24 * time.Hour
)

// NewStore creates a session store.
func NewStore(opts Options) (*Store, error) {
	observability.EnsureRegistered()

	if opts.Prompts == nil {
		return nil, fmt.Errorf("prompt source is required")
	}
	if opts.MaxSessions == 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions cannot be negative")
	}
	if opts.TTL == 0 {
		opts.TTL = defaultTTL
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("session ttl cannot be negative")
	}

	s := &Store{
		sessions:    make(map[string]*Session),
		prompts:     opts.Prompts,
		maxSessions: opts.MaxSessions,
		ttl:         opts.TTL,
	}

	log.Info().
		Int("max_sessions", opts.MaxSessions).
		Dur("ttl", opts.TTL).
		Msg("Session store initialized")

	return s, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.ContainsAny(key, "\x00\n") {
		return fmt.Errorf("session key contains control characters")
	}
	return nil
}

// GetOrCreate returns the session for key, creating and seeding it with the
// system persona message on first reference. Subsequent calls return the
// same session; appends through it are visible to all callers.
func (st *Store) GetOrCreate(key string) (*Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[key]; ok {
		return sess, nil
	}

	if len(st.sessions) >= st.maxSessions {
		st.evictOldestLocked()
	}

	now := time.Now()
	sess := &Session{
		Key:        key,
		createdAt:  now,
		lastActive: now,
		messages: []Message{{
			Role:      RoleSystem,
			Content:   st.prompts.Prompt(),
			Timestamp: now,
		}},
	}
	st.sessions[key] = sess
	observability.RecordSessionCreated()
	st.reportCountLocked()

	log.Debug().Str("session_key", key).Msg("Session created")

	return sess, nil
}

// Get returns the session for key, or nil if it does not exist.
func (st *Store) Get(key string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[key]
}

// Reset removes a session so the next reference starts fresh.
func (st *Store) Reset(key string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[key]; !ok {
		return false
	}
	delete(st.sessions, key)
	st.reportCountLocked()

	log.Info().Str("session_key", key).Msg("Session reset")
	return true
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// EvictIdle removes sessions whose last activity is older than the TTL and
// returns how many were removed.
func (st *Store) EvictIdle(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for key, sess := range st.sessions {
		if now.Sub(sess.LastActive()) >= st.ttl {
			delete(st.sessions, key)
			evicted++
			log.Debug().Str("session_key", key).Msg("Idle session evicted")
		}
	}

	if evicted > 0 {
		st.reportCountLocked()
		log.Info().Int("evicted", evicted).Msg("Idle sessions evicted")
	}

	return evicted
}

// evictOldestLocked removes the least recently active session. Caller holds
// the store lock.
func (st *Store) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time

	for key, sess := range st.sessions {
		last := sess.LastActive()
		if oldestKey == "" || last.Before(oldest) {
			oldestKey = key
			oldest = last
		}
	}

	if oldestKey != "" {
		delete(st.sessions, oldestKey)
		log.Warn().
			Str("session_key", oldestKey).
			Msg("Session cap reached, evicting least recently active")
	}
}

func (st *Store) reportCountLocked() {
	observability.SetActiveSessions(len(st.sessions))
}
