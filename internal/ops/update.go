package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	CallerID string
	ID       string

	Title *string
	Body  *string
	Theme *string // empty string clears the theme

	// Fields lists every key the caller submitted. Surfaces that decode
	// free-form payloads fill it so that lifecycle fields are rejected
	// rather than silently ignored.
	Fields []string
}

// Update edits the content of a sealed capsule whose unlock time has not
// passed. Only title, body and theme are mutable.
func (s *Service) Update(ctx context.Context, input UpdateInput) (_ *CapsuleView, err error) {
	defer s.observe("update", &err)

	if err := capsule.CheckUpdateFields(input.Fields); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidationField("id", "is required")
	}
	if input.Title == nil && input.Body == nil && input.Theme == nil {
		return nil, errors.NewValidation("at least one of title, body, theme is required")
	}

	u := db.ContentUpdate{Body: input.Body}
	if input.Title != nil {
		t := strings.TrimSpace(*input.Title)
		u.Title = &t
	}
	if input.Theme != nil {
		t := strings.TrimSpace(*input.Theme)
		u.Theme = &t
	}
	if err := capsule.ValidateContent(u.Title, u.Body, u.Theme, s.limits()); err != nil {
		return nil, err
	}

	now := s.now()

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := capsule.CheckSealedForSender(c, input.CallerID, now); err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	ok, err := s.store.UpdateContentCAS(sctx, id, input.CallerID, u, now)
	cancel()
	if err != nil {
		return nil, err
	}

	c, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := capsule.CheckSealedForSender(c, input.CallerID, now); err != nil {
			return nil, err
		}
		return nil, errors.NewNotSealed(capsule.EffectiveStatus(c, now).String())
	}

	hints, err := s.loadHints(ctx, c, roleSender)
	if err != nil {
		return nil, err
	}
	v := senderView(c, hints, now)
	return &v, nil
}
