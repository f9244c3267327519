// Package sweep runs the recurring background pass that force-expires quotes
// whose confirmation timer lapsed. The deadline itself is advisory data; only
// this pass (through the guarded expire transition) is the authority that can
// move a quote to expired.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"goflare.io/settlement/lifecycle"
	"goflare.io/settlement/quote"
)

const batchLimit = 500

type Sweeper struct {
	quotes    quote.Repository
	lifecycle lifecycle.Service
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSweeper(quotes quote.Repository, lc lifecycle.Service, interval, timeout time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		quotes:    quotes,
		lifecycle: lc,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start launches the recurring sweep. It runs once immediately, then on every
// tick until the context is canceled. Overlapping invocations (including an
// externally triggered RunOnce) are safe: each quote is settled by a guarded
// transition, so a second pass over the same quote is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runWithTimeout(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runWithTimeout(ctx)
			}
		}
	}()
}

func (s *Sweeper) runWithTimeout(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expired, err := s.RunOnce(runCtx)
	if err != nil {
		s.logger.Error("confirmation sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("confirmation sweep expired quotes", zap.Int("expired_count", expired))
	}
}

// RunOnce performs a single sweep pass and returns how many quotes it expired.
// A quote already moved to confirmed by a payment event, or already expired by
// an earlier pass, is skipped without error and without being counted.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()

	candidates, err := s.quotes.ListExpired(ctx, now, batchLimit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, q := range candidates {
		applied, err := s.lifecycle.Expire(ctx, q.ID, now)
		if err != nil {
			// Keep sweeping: one stuck quote must not starve the rest. The
			// error is logged for operator follow-up, not retried in a loop.
			s.logger.Error("failed to expire quote",
				zap.Error(err),
				zap.String("quote_id", q.ID))
			continue
		}
		if applied {
			expired++
		}
	}

	return expired, nil
}
