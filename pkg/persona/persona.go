// Package persona manages the system prompt that seeds every session.
//
// The prompt can come from a file, in which case it is hot-reloaded when the
// file changes, so operators can tune the agent's behavior without a restart.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultPrompt is used when no persona file is configured. The final
// instruction matters: status narration and tool bookkeeping are streamed to
// the caller separately and must never leak into the durable answer.
const DefaultPrompt = `You are a versatile content creation assistant. You help users research topics, ` +
	`analyze text for SEO keyword density, and publish finished articles. Use the available tools ` +
	`whenever they would improve your answer, and incorporate their results faithfully, including ` +
	`failures. If a tool fails, acknowledge the limitation and answer as best you can. ` +
	`Never mention tool names, internal status updates, or intermediate steps in your final answer.`

// Manager holds the current system prompt and optionally watches a file
// for changes.
type Manager struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu     sync.RWMutex
	prompt string
}

// New creates a manager. With an empty path the built-in default prompt is
// used and nothing is watched. With a path, the file must exist and be
// readable at startup.
func New(path string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		path:   path,
		logger: logger,
		prompt: DefaultPrompt,
	}

	if path != "" {
		if err := m.Reload(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Prompt returns the current system prompt.
func (m *Manager) Prompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prompt
}

// Reload re-reads the persona file.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("reading persona file: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return fmt.Errorf("persona file %s is empty", m.path)
	}

	m.mu.Lock()
	m.prompt = prompt
	m.mu.Unlock()

	m.logger.Info().Str("file", m.path).Int("bytes", len(prompt)).Msg("Persona loaded")
	return nil
}

// Watch starts hot reloading. No-op when no file is configured.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}
	if m.watcher != nil {
		return fmt.Errorf("persona watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace files on save, which would
	// drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.watcher = watcher
	m.stopCh = make(chan struct{})
	go m.run()

	m.logger.Info().Str("file", m.path).Msg("Persona watcher started")
	return nil
}

// Stop halts hot reloading. Safe to call when not watching.
func (m *Manager) Stop() {
	if m.watcher == nil {
		return
	}
	close(m.stopCh)
	m.watcher.Close()
	m.watcher = nil
}

func (m *Manager) run() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := m.Reload(); err != nil {
					m.logger.Error().Err(err).Msg("Persona reload failed, keeping previous prompt")
				}
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error().Err(err).Msg("Persona watcher error")

		case <-m.stopCh:
			return
		}
	}
}
