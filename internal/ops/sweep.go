package ops

import (
	"context"
	stderrors "errors"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// SweepOutput contains the result of one sweep pass.
type SweepOutput struct {
	Promoted int `json:"promoted"`
	Revealed int `json:"revealed"`
}

// Sweep runs one promote pass followed by one reveal pass. Errors from one
// pass do not prevent the other.
func (s *Service) Sweep(ctx context.Context) (*SweepOutput, error) {
	promoted, perr := s.PromoteEligible(ctx)
	revealed, rerr := s.RevealDue(ctx)
	return &SweepOutput{Promoted: promoted, Revealed: revealed}, stderrors.Join(perr, rerr)
}

// PromoteEligible moves every sealed capsule whose unlock time has passed
// to ready, in batches. Each capsule is promoted by its own conditional
// write; a failed row is logged and skipped.
func (s *Service) PromoteEligible(ctx context.Context) (int, error) {
	return s.sweepBatches(ctx, "promote",
		func(ctx context.Context, now int64, limit int) ([]*capsule.Capsule, error) {
			return s.store.ListPromotable(ctx, now, limit)
		},
		func(ctx context.Context, c *capsule.Capsule, now int64) (bool, error) {
			ok, err := s.store.PromoteCAS(ctx, c.ID, now)
			if ok {
				c.Status = capsule.Ready
				s.notifier.CapsuleReady(ctx, c)
			}
			return ok, err
		},
	)
}

// RevealDue sets sender_revealed_at on every opened anonymous capsule whose
// reveal instant has passed.
func (s *Service) RevealDue(ctx context.Context) (int, error) {
	return s.sweepBatches(ctx, "reveal",
		func(ctx context.Context, now int64, limit int) ([]*capsule.Capsule, error) {
			return s.store.ListRevealDue(ctx, now, limit)
		},
		func(ctx context.Context, c *capsule.Capsule, now int64) (bool, error) {
			ok, err := s.store.RevealCAS(ctx, c.ID, now)
			if ok {
				c.SenderRevealedAt = &now
				s.notifier.SenderRevealed(ctx, c)
			}
			return ok, err
		},
	)
}

type (
	listFn  func(ctx context.Context, now int64, limit int) ([]*capsule.Capsule, error)
	applyFn func(ctx context.Context, c *capsule.Capsule, now int64) (bool, error)
)

// sweepBatches drains candidates batch by batch. It stops on a short batch,
// on a batch where nothing applied, or when ctx is done.
func (s *Service) sweepBatches(ctx context.Context, transition string, list listFn, apply applyFn) (int, error) {
	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}

	var (
		total int
		errs  []error
	)
	for ctx.Err() == nil {
		now := s.now()

		sctx, cancel := s.storeCtx(ctx)
		candidates, err := list(sctx, now, batch)
		cancel()
		if err != nil {
			errs = append(errs, err)
			break
		}

		applied := 0
		for _, c := range candidates {
			sctx, cancel := s.storeCtx(ctx)
			ok, err := apply(sctx, c, now)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Str("capsule_id", c.ID).Str("transition", transition).Msg("sweep write failed")
				errs = append(errs, err)
				continue
			}
			if !ok {
				metrics.CASLost.WithLabelValues(transition).Inc()
				continue
			}
			applied++
			metrics.Transitions.WithLabelValues(transition, "sweep").Inc()
		}
		total += applied

		if len(candidates) < batch || applied == 0 {
			break
		}
	}
	return total, stderrors.Join(errs...)
}
