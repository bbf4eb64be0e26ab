package service

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatchSize = 200

// Sweeper periodically expires stale approval requests. Expiry does not
// depend on a request being observed: the sweep finds overdue requests on
// its own.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs the approval sweeper. logger may be nil.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled. One sweep
// runs immediately on start so a restart does not delay overdue expirations
// by a full interval.
func (w *Sweeper) Run(ctx context.Context) error {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	// Drain in batches until a sweep comes up empty, so a backlog after
	// downtime clears in one pass.
	for {
		expired, err := w.service.ExpireStale(ctx, sweepBatchSize)
		if err != nil {
			w.logger.Error("approval sweep failed", "error", err)
			return
		}
		if expired > 0 {
			w.logger.Info("expired stale approval requests", "count", expired)
		}
		if expired < sweepBatchSize {
			return
		}
	}
}
