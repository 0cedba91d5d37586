package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/corewrite/pipeline/pkg/ledger"
)

// Sweeper periodically promotes stale pending ledger rows to failed. Off
// by default (spec.md §9 Open Question #1 asks for "a configurable
// background task rather than inferred policy" without mandating it run) —
// cmd/processor only starts it when ProcessorConfig.SweeperEnabled is set.
type Sweeper struct {
	ledger     *ledger.Ledger
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(l *ledger.Ledger, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		ledger:     l,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     slog.Default().With("component", "sweeper"),
	}
}

// Run blocks, sweeping on each tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.ledger.SweepStalePending(ctx, s.staleAfter)
			if err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.WarnContext(ctx, "swept stale pending operations", "count", n)
			}
		}
	}
}
