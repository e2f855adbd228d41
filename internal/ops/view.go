package ops

import (
	"context"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// CapsuleView is a capsule as one caller may see it. The sender sees every
// field. The recipient sees the sender only once revealed and the body only
// once opened.
type CapsuleView struct {
	ID          string  `json:"id"`
	SenderID    string  `json:"sender_id,omitempty"`
	RecipientID string  `json:"recipient_id"`
	Title       string  `json:"title"`
	Body        *string `json:"body,omitempty"`
	Theme       *string `json:"theme,omitempty"`
	Status      string  `json:"status"`

	IsAnonymous        bool   `json:"is_anonymous"`
	SenderHidden       bool   `json:"sender_hidden"`
	RevealDelaySeconds *int64 `json:"reveal_delay_seconds,omitempty"`

	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
	UnlocksAt        int64  `json:"unlocks_at"`
	OpenedAt         *int64 `json:"opened_at,omitempty"`
	RevealAt         *int64 `json:"reveal_at,omitempty"`
	SenderRevealedAt *int64 `json:"sender_revealed_at,omitempty"`
	WithdrawnAt      *int64 `json:"withdrawn_at,omitempty"`

	// Sender only.
	Hints []string `json:"hints,omitempty"`

	// Recipient only, while the sender is hidden.
	CurrentHint *capsule.Hint `json:"current_hint,omitempty"`
	NextHintAt  *int64        `json:"next_hint_at,omitempty"`
}

type role int

const (
	roleNone role = iota
	roleSender
	roleRecipient
)

// roleOf resolves the caller's relation to c. A capsule addressed to its own
// sender is viewed as the sender.
func roleOf(c *capsule.Capsule, callerID string) role {
	switch callerID {
	case c.SenderID:
		return roleSender
	case c.RecipientID:
		return roleRecipient
	}
	return roleNone
}

// senderView exposes everything, including the hint list.
func senderView(c *capsule.Capsule, hints *capsule.Hints, now int64) CapsuleView {
	v := baseView(c, now)
	v.SenderID = c.SenderID
	body := c.Body
	v.Body = &body
	if hints != nil {
		v.Hints = hints.List()
	}
	return v
}

// recipientView masks the sender while hidden and the body until opened.
// hints may be nil when the caller did not load them.
func recipientView(c *capsule.Capsule, hints *capsule.Hints, now int64) CapsuleView {
	v := baseView(c, now)
	if !capsule.SenderHidden(c) {
		v.SenderID = c.SenderID
	} else {
		v.SenderID = capsule.AnonymousSender
	}
	if c.OpenedAt != nil {
		body := c.Body
		v.Body = &body
	}
	if hints != nil {
		if h, ok := capsule.CurrentHint(c, hints, now); ok {
			v.CurrentHint = &h
		}
		if at, ok := capsule.NextHintAt(c, hints, now); ok {
			v.NextHintAt = &at
		}
	}
	return v
}

func baseView(c *capsule.Capsule, now int64) CapsuleView {
	return CapsuleView{
		ID:                 c.ID,
		RecipientID:        c.RecipientID,
		Title:              c.Title,
		Theme:              c.Theme,
		Status:             capsule.EffectiveStatus(c, now).String(),
		IsAnonymous:        c.IsAnonymous,
		SenderHidden:       capsule.SenderHidden(c),
		RevealDelaySeconds: c.RevealDelaySeconds,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		UnlocksAt:          c.UnlocksAt,
		OpenedAt:           c.OpenedAt,
		RevealAt:           c.RevealAt,
		SenderRevealedAt:   c.SenderRevealedAt,
		WithdrawnAt:        c.DeletedAt,
	}
}

// revealIfDue applies the sender reveal on a read path when it is due and
// updates c in place. Failures leave c masked and are only logged; the
// sweeper retries.
func (s *Service) revealIfDue(ctx context.Context, c *capsule.Capsule, now int64) {
	if !capsule.RevealDue(c, now) {
		return
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	ok, err := s.store.RevealCAS(sctx, c.ID, now)
	if err != nil {
		s.log.Warn().Err(err).Str("capsule_id", c.ID).Msg("lazy reveal failed")
		return
	}
	if ok {
		c.SenderRevealedAt = &now
		metrics.Transitions.WithLabelValues("reveal", "lazy").Inc()
		s.notifier.SenderRevealed(ctx, c)
		return
	}

	metrics.CASLost.WithLabelValues("reveal").Inc()
	fresh, err := s.store.GetCapsule(sctx, c.ID, true)
	if err != nil {
		s.log.Warn().Err(err).Str("capsule_id", c.ID).Msg("re-read after lost reveal failed")
		return
	}
	*c = *fresh
}

// loadHints fetches hints only when they can affect the view.
func (s *Service) loadHints(ctx context.Context, c *capsule.Capsule, r role) (*capsule.Hints, error) {
	if r == roleSender && !c.IsAnonymous {
		return nil, nil
	}
	if r == roleRecipient && !capsule.HintEligible(c) {
		return nil, nil
	}
	if r == roleNone {
		return nil, nil
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetHints(sctx, c.ID)
}
