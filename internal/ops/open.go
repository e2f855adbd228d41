package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// OpenInput contains parameters for the Open operation.
type OpenInput struct {
	CallerID string
	ID       string
}

// Open moves a ready capsule to opened for its recipient and returns the
// full recipient view. A sealed row past its unlock time is promoted first.
// Of any number of concurrent callers exactly one succeeds; the rest get
// ALREADY_OPENED.
func (s *Service) Open(ctx context.Context, input OpenInput) (_ *CapsuleView, err error) {
	defer s.observe("open", &err)

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidationField("id", "is required")
	}

	now := s.now()

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := capsule.CheckOpen(c, input.CallerID, now); err != nil {
		return nil, err
	}

	if capsule.PromoteDue(c, now) {
		if err := s.promote(ctx, c, now, "lazy"); err != nil {
			return nil, err
		}
	}

	openedAt, revealAt := capsule.OpenPlan(c, now)

	sctx, cancel := s.storeCtx(ctx)
	ok, err := s.store.OpenCAS(sctx, id, input.CallerID, openedAt, revealAt)
	cancel()
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.CASLost.WithLabelValues("open").Inc()
		return nil, s.openLost(ctx, id, input.CallerID, now)
	}

	metrics.Transitions.WithLabelValues("open", "request").Inc()
	c.Status = capsule.Opened
	c.OpenedAt = &openedAt
	c.RevealAt = revealAt
	c.UpdatedAt = openedAt

	// A zero delay reveals at the instant of opening.
	s.revealIfDue(ctx, c, now)

	hints, err := s.loadHints(ctx, c, roleRecipient)
	if err != nil {
		return nil, err
	}
	v := recipientView(c, hints, now)
	return &v, nil
}

// openLost re-reads after a lost open and reports why the write did not apply.
func (s *Service) openLost(ctx context.Context, id, callerID string, now int64) error {
	c, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := capsule.CheckOpen(c, callerID, now); err != nil {
		return err
	}
	return errors.NewConflict("capsule changed concurrently; retry")
}

// promote applies sealed -> ready. Losing the race is not an error; the row
// is re-read so c reflects whoever won.
func (s *Service) promote(ctx context.Context, c *capsule.Capsule, now int64, source string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.store.PromoteCAS(sctx, c.ID, now)
	if err != nil {
		return err
	}
	if ok {
		c.Status = capsule.Ready
		c.UpdatedAt = now
		metrics.Transitions.WithLabelValues("promote", source).Inc()
		s.notifier.CapsuleReady(ctx, c)
		return nil
	}

	metrics.CASLost.WithLabelValues("promote").Inc()
	fresh, err := s.store.GetCapsule(sctx, c.ID, true)
	if err != nil {
		return err
	}
	*c = *fresh
	return nil
}

// get reads a capsule including withdrawn rows.
func (s *Service) get(ctx context.Context, id string) (*capsule.Capsule, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetCapsule(sctx, id, true)
}
