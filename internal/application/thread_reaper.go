package application

import (
	"context"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	"gitlab.com/shutterbug/web/shutterbug-core/pkg/safego"
)

// StartIdleThreadReaper periodically closes open threads nobody has used
// within comments.idle_thread_timeout_seconds.
func (s *CommentService) StartIdleThreadReaper(appCtx context.Context) {
	cfg := s.configProvider.Get().Comments
	interval := config.TTL(cfg.ReaperIntervalSeconds, 0)
	idleTimeout := config.TTL(cfg.IdleThreadTimeoutSeconds, 0)

	if interval <= 0 || idleTimeout <= 0 {
		s.logger.Warn(appCtx, "Idle thread reaper is not configured; open threads stay until closed",
			"interval_seconds", cfg.ReaperIntervalSeconds,
			"idle_timeout_seconds", cfg.IdleThreadTimeoutSeconds,
		)
		return
	}

	s.logger.Info(appCtx, "Starting idle thread reaper", "interval", interval.String(), "idle_timeout", idleTimeout.String())

	s.reaperWg.Add(1)
	safego.Execute(appCtx, s.logger, "IdleThreadReaper", func() {
		defer s.reaperWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				closed := s.ReapIdleThreads(appCtx, idleTimeout)
				if closed > 0 {
					s.logger.Debug(appCtx, "Idle thread reaper tick completed", "closed", closed, "open", len(s.OpenThreads()))
				}
			case <-s.reaperStop:
				s.logger.Info(appCtx, "Idle thread reaper stopping as requested.")
				return
			case <-appCtx.Done():
				s.logger.Info(appCtx, "Idle thread reaper stopping due to application context cancellation.")
				return
			}
		}
	})
}

// ReapIdleThreads closes every thread idle for longer than idleTimeout and
// returns how many were closed.
func (s *CommentService) ReapIdleThreads(ctx context.Context, idleTimeout time.Duration) int {
	closed := 0
	for _, ref := range s.idleThreads(s.now().Add(-idleTimeout)) {
		if s.CloseThread(ctx, ref) {
			closed++
		}
	}
	return closed
}

// StopIdleThreadReaper signals the reaper to stop and waits for it. Safe to call more than once.
func (s *CommentService) StopIdleThreadReaper() {
	s.reaperOnce.Do(func() {
		close(s.reaperStop)
	})
	s.reaperWg.Wait()
}
