package sweeper

import (
	"context"
	"time"

	"ride-pool/pkg/logger"
)

type poolPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically deletes open and locked pools past their expiry.
type Sweeper struct {
	repo     poolPurger
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func New(repo poolPurger, interval time.Duration, logger logger.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logger.LogFields{"interval": s.interval.String()}).Info("sweeper_started", "Expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper_stopped", "Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("purge_expired_failed", err)
		return
	}
	if n > 0 {
		s.logger.WithFields(logger.LogFields{"purged": n}).Info("pools_expired", "Expired pools purged")
	}
}
