package revocation

import (
	"context"
	"log/slog"
	"time"
)

type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweeper removes expired blacklist rows on a fixed interval until its
// context is cancelled. It is independent of request handling.
type Sweeper struct {
	Store    Purger
	Interval time.Duration
	Logger   *slog.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l = l.With("component", "revocation_sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("sweeper_stopped")
			return
		case <-ticker.C:
			n, err := s.Store.Purge(ctx)
			if err != nil {
				l.Error("sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				l.Debug("sweep_completed", "purged", n)
			}
		}
	}
}
