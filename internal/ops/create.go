package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

// CreateInput contains parameters for the Create operation.
type CreateInput struct {
	CallerID           string // sender
	RecipientID        string // required
	Title              string
	Body               string // required
	Theme              *string
	UnlocksAt          int64 // unix seconds, must be in the future
	IsAnonymous        bool
	RevealDelaySeconds *int64 // required iff IsAnonymous, 0..259200
	Hints              []string
}

// Create seals a new capsule. Anonymous capsules require the sender and
// recipient to be mutually connected at creation time.
func (s *Service) Create(ctx context.Context, input CreateInput) (_ *CapsuleView, err error) {
	defer s.observe("create", &err)

	now := s.now()

	theme := cleanOptionalString(input.Theme)
	hints := make([]string, 0, len(input.Hints))
	for _, h := range input.Hints {
		hints = append(hints, strings.TrimSpace(h))
	}

	draft := capsule.Draft{
		SenderID:           strings.TrimSpace(input.CallerID),
		RecipientID:        strings.TrimSpace(input.RecipientID),
		Title:              strings.TrimSpace(input.Title),
		Body:               input.Body,
		Theme:              theme,
		UnlocksAt:          input.UnlocksAt,
		IsAnonymous:        input.IsAnonymous,
		RevealDelaySeconds: input.RevealDelaySeconds,
		Hints:              hints,
	}
	if err := capsule.ValidateDraft(draft, now, s.limits()); err != nil {
		return nil, err
	}

	if draft.IsAnonymous {
		if err := s.checkConnected(ctx, draft.SenderID, draft.RecipientID); err != nil {
			return nil, err
		}
	}

	id, err := generateULID(s.clock.Now())
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	c := &capsule.Capsule{
		ID:                 id,
		SenderID:           draft.SenderID,
		RecipientID:        draft.RecipientID,
		Title:              draft.Title,
		Body:               draft.Body,
		Theme:              draft.Theme,
		Status:             capsule.Sealed,
		IsAnonymous:        draft.IsAnonymous,
		RevealDelaySeconds: draft.RevealDelaySeconds,
		CreatedAt:          now,
		UpdatedAt:          now,
		UnlocksAt:          draft.UnlocksAt,
	}

	var h *capsule.Hints
	if len(hints) > 0 {
		h = capsule.NewHints(id, hints)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.InsertCapsule(sctx, c, h); err != nil {
		return nil, err
	}

	s.log.Debug().Str("capsule_id", id).Bool("anonymous", c.IsAnonymous).Msg("capsule sealed")

	v := senderView(c, h, now)
	return &v, nil
}

// checkConnected fails closed: a collaborator error reads as not connected.
func (s *Service) checkConnected(ctx context.Context, sender, recipient string) error {
	if sender == recipient {
		return errors.NewNotConnected()
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.conns.AreMutuallyConnected(sctx, sender, recipient)
	if err != nil {
		s.log.Warn().Err(err).Msg("connection check failed")
		return errors.NewNotConnected()
	}
	if !ok {
		return errors.NewNotConnected()
	}
	return nil
}

// cleanOptionalString trims s and maps blank to nil.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
