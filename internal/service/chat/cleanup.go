package chat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSweepInterval = 10 * time.Minute

// StartJanitor discards sessions idle for longer than Options.IdleTTL until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sweepIdle(); removed > 0 {
				logrus.WithField("removed", removed).Info("[chat] discarded idle sessions")
			}
		}
	}
}

// sweepIdle removes idle sessions and reports how many were dropped. A session
// with a send in flight is never removed.
func (s *Service) sweepIdle() int {
	cutoff := s.now().UTC().Add(-s.opts.IdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.sessions {
		state.mu.Lock()
		expired := !state.sending && state.lastSeen.Before(cutoff)
		state.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
