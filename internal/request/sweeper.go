package request

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires requests past their deadline. Expiry is also
// checked inline on every transition, so the sweep only has to keep the
// stored status eventually consistent with the deadline.
type Sweeper struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(service *Service, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, logger: logger, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := s.service.Expire(ctx, now.UTC()); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}
