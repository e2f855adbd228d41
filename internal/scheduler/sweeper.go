// Package scheduler runs the background jobs: the periodic unlock/reveal
// sweep and the cron-driven retention purge.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/metrics"
	"github.com/hpungsan/keepsake/internal/ops"
)

// Sweepable is the part of ops.Service the sweeper drives.
type Sweepable interface {
	Sweep(ctx context.Context) (*ops.SweepOutput, error)
}

// Sweeper periodically promotes due capsules and reveals due senders.
// Correctness does not depend on it: every read path re-verifies lazily.
type Sweeper struct {
	svc      Sweepable
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper constructs a Sweeper. A non-positive interval means one minute.
func NewSweeper(svc Sweepable, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
// Failed passes are logged; the next tick retries.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("sweeper starting")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := time.Now()
	out, err := s.svc.Sweep(ctx)
	metrics.SweepRuns.WithLabelValues("sweep").Inc()
	metrics.SweepDuration.WithLabelValues("sweep").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepErrors.WithLabelValues("sweep").Inc()
		s.log.Error().Err(err).Msg("sweep pass failed")
	}
	if out != nil && (out.Promoted > 0 || out.Revealed > 0) {
		s.log.Info().Int("promoted", out.Promoted).Int("revealed", out.Revealed).Msg("sweep pass")
	}
}
