package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CleanupService periodically removes expired shares from the store.
type CleanupService struct {
	store    Store
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(store Store, interval time.Duration, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		store:    store,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	cs.logger.Info("cleanup service started", zap.Duration("interval", cs.interval))

	go func() {
		defer close(cs.done)

		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cs.RunOnce(ctx)
			case <-ctx.Done():
				cs.logger.Info("cleanup service stopping")
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

// RunOnce performs a single sweep and returns the number of removed shares.
func (cs *CleanupService) RunOnce(ctx context.Context) int {
	removed, err := cs.store.SweepExpired(ctx, cs.now())
	if err != nil {
		cs.logger.Error("failed to sweep expired shares",
			zap.Int("removed", removed),
			zap.Error(err),
		)
		return removed
	}

	if removed > 0 {
		cs.logger.Info("cleanup cycle complete", zap.Int("removed", removed))
	} else {
		cs.logger.Debug("no expired shares to clean up")
	}
	return removed
}
