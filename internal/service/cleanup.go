package service

import (
	"context"
	"time"

	"guardbot/internal/metrics"
)

func (s *ModerationService) StartMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)

	update := func() {
		metrics.SetPendingBans(float64(s.bans.Len()))
		metrics.SetBannedTerms(float64(s.terms.Len()))
		metrics.SetTrackedActors(float64(s.tracker.Actors()))
	}

	go update()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				update()
			}
		}
	}()
}

// StartJanitor drops idle rate records so departed actors do not pile up.
func (s *ModerationService) StartJanitor(ctx context.Context, every time.Duration) {
	s.tracker.StartJanitor(ctx, every, s.now)
}
