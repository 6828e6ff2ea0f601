package services

import (
	"context"
	"time"

	"github.com/folio/contact-relay/pkg/logger"
	"go.uber.org/zap"
)

// RunJanitor purges expired rate limit records every interval until ctx is done.
// A failed purge is logged and retried on the next tick.
func (s *RelayService) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		logger.Info("Rate limit janitor disabled")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Rate limit janitor started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Rate limit janitor stopped")
			return nil
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Scheduled rate limit purge failed", zap.Error(err))
			}
		}
	}
}
