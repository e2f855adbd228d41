package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/errors"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	CallerID string
	ID       string
}

// Fetch returns a single capsule as the caller may see it. Callers who are
// neither sender nor recipient get NOT_FOUND, as does a recipient asking for
// a withdrawn capsule. The sender still sees withdrawn capsules.
func (s *Service) Fetch(ctx context.Context, input FetchInput) (_ *CapsuleView, err error) {
	defer s.observe("fetch", &err)

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidationField("id", "is required")
	}

	now := s.now()

	sctx, cancel := s.storeCtx(ctx)
	c, err := s.store.GetCapsule(sctx, id, true)
	cancel()
	if err != nil {
		return nil, err
	}

	r := roleOf(c, input.CallerID)
	switch {
	case r == roleNone:
		return nil, errors.NewNotFound("capsule", id)
	case r == roleRecipient && c.Withdrawn():
		return nil, errors.NewNotFound("capsule", id)
	}

	if r == roleRecipient {
		s.revealIfDue(ctx, c, now)
	}

	hints, err := s.loadHints(ctx, c, r)
	if err != nil {
		return nil, err
	}

	var v CapsuleView
	if r == roleSender {
		v = senderView(c, hints, now)
	} else {
		v = recipientView(c, hints, now)
	}
	return &v, nil
}
