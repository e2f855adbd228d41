package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

// HintInput contains parameters for the Hint operation.
type HintInput struct {
	CallerID string
	ID       string
}

// HintOutput contains the result of the Hint operation. Hint is nil when no
// threshold has been crossed yet or the sender is already revealed.
type HintOutput struct {
	CapsuleID  string        `json:"capsule_id"`
	Hint       *capsule.Hint `json:"hint"`
	NextHintAt *int64        `json:"next_hint_at,omitempty"`
	Revealed   bool          `json:"revealed"`
	SenderID   string        `json:"sender_id,omitempty"` // set once revealed
}

// Hint returns the current identity hint of an anonymous capsule for its
// recipient. Hints supersede each other; at most one is returned.
func (s *Service) Hint(ctx context.Context, input HintInput) (_ *HintOutput, err error) {
	defer s.observe("hint", &err)

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidationField("id", "is required")
	}

	now := s.now()

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Withdrawn() {
		return nil, errors.NewNotFound("capsule", id)
	}
	if c.RecipientID != input.CallerID {
		return nil, errors.NewForbidden("only the recipient can view hints")
	}
	if !c.IsAnonymous {
		return nil, errors.NewNotAnonymous()
	}

	s.revealIfDue(ctx, c, now)

	out := &HintOutput{CapsuleID: id, Revealed: c.SenderRevealedAt != nil}
	if out.Revealed {
		out.SenderID = c.SenderID
		return out, nil
	}

	hints, err := s.loadHints(ctx, c, roleRecipient)
	if err != nil {
		return nil, err
	}
	if hints == nil {
		return out, nil
	}
	if h, ok := capsule.CurrentHint(c, hints, now); ok {
		out.Hint = &h
	}
	if at, ok := capsule.NextHintAt(c, hints, now); ok {
		out.NextHintAt = &at
	}
	return out, nil
}
