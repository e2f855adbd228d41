package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/clock"
	"github.com/hpungsan/keepsake/internal/metrics"
	"github.com/hpungsan/keepsake/internal/ops"
)

// Purger is the part of ops.Service the retention job drives.
type Purger interface {
	Purge(ctx context.Context, input ops.PurgeInput) (*ops.PurgeOutput, error)
}

// Retention permanently deletes withdrawn capsules older than a fixed
// number of days on a cron schedule.
type Retention struct {
	svc   Purger
	cron  string
	days  int
	clock clock.Clock
	log   zerolog.Logger
}

// NewRetention validates cronExpr and constructs the job.
func NewRetention(svc Purger, cronExpr string, days int, clk clock.Clock, log zerolog.Logger) (*Retention, error) {
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Retention{svc: svc, cron: cronExpr, days: days, clock: clk, log: log}, nil
}

// Next returns the first scheduled run strictly after t.
func (r *Retention) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(r.cron, t.UTC(), false)
}

// Run sleeps until each cron tick and purges, until ctx is canceled.
func (r *Retention) Run(ctx context.Context) error {
	r.log.Info().Str("cron", r.cron).Int("days", r.days).Msg("retention starting")
	for {
		next, err := r.Next(r.clock.Now())
		if err != nil {
			r.log.Error().Err(err).Str("cron", r.cron).Msg("retention next tick failed")
			next = r.clock.Now().Add(30 * time.Second)
		}

		timer := time.NewTimer(max(time.Until(next), time.Second))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info().Msg("retention stopping")
			return ctx.Err()
		case <-timer.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge.
func (r *Retention) RunOnce(ctx context.Context) {
	start := time.Now()
	days := r.days
	out, err := r.svc.Purge(ctx, ops.PurgeInput{OlderThanDays: &days})
	metrics.SweepRuns.WithLabelValues("retention").Inc()
	metrics.SweepDuration.WithLabelValues("retention").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepErrors.WithLabelValues("retention").Inc()
		r.log.Error().Err(err).Msg("retention purge failed")
		return
	}
	r.log.Info().Int("purged", out.Purged).Msg(out.Message)
}
