package wsserver

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warden-run/warden/internal/workspace"
)

// StartReaper schedules the idle-session reaper. It runs every minute and
// discards open sessions untouched for longer than ReapAfter, then drops
// their tracking entries. No-op when ReapAfter is zero. Returns a stop
// function.
func (s *Server) StartReaper() (func(), error) {
	if s.reapAfter <= 0 {
		return func() {}, nil
	}

	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		s.reap(time.Now())
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session reaper: %w", err)
	}
	c.Start()

	return func() { <-c.Stop().Done() }, nil
}

// reap discards sessions idle since before now-reapAfter. Closed sessions
// linger one extra interval so stragglers get 410 instead of 404, then their
// entries are dropped too.
func (s *Server) reap(now time.Time) {
	cutoff := now.Add(-s.reapAfter)

	s.mu.Lock()
	var stale []*tracked
	for id, entry := range s.sessions {
		if entry.lastUsed.Before(cutoff) {
			stale = append(stale, entry)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, entry := range stale {
		if entry.session.Status() != workspace.StatusOpen {
			continue
		}
		if err := s.fs.Discard(context.Background(), entry.session); err != nil {
			s.logger.Warn("reaper discard failed", "session", entry.session.ID, "error", err)
			continue
		}
		s.metrics.reaped.Inc()
		s.metrics.sessionsOpen.Dec()
		s.logger.Info("idle session reaped", "session", entry.session.ID,
			"idle", now.Sub(entry.lastUsed).Round(time.Second))
	}
}
