package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultCleanupSchedule runs eviction every five minutes.
const DefaultCleanupSchedule = "@every 5m"

// Cleanup evicts idle sessions on a cron schedule.
type Cleanup struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	running  bool
}

// NewCleanup creates a cleanup handler for the store. An empty schedule
// uses DefaultCleanupSchedule.
func NewCleanup(store *Store, schedule string) (*Cleanup, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}

	return &Cleanup{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
	}, nil
}

// Start schedules periodic eviction.
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	id, err := c.cron.AddFunc(c.schedule, func() {
		c.store.EvictIdle(time.Now())
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.schedule, err)
	}

	c.entryID = id
	c.cron.Start()
	c.running = true

	log.Info().Str("schedule", c.schedule).Msg("Session cleanup started")
	return nil
}

// Stop halts the schedule. Safe to call when not running.
func (c *Cleanup) Stop() {
	if !c.running {
		return
	}
	c.cron.Stop()
	c.running = false
	log.Info().Msg("Session cleanup stopped")
}

// IsRunning reports whether the schedule is active.
func (c *Cleanup) IsRunning() bool {
	return c.running
}

// EvictNow runs one eviction pass immediately.
func (c *Cleanup) EvictNow() int {
	return c.store.EvictIdle(time.Now())
}
