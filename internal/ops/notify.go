package ops

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/capsule"
)

// Notifier receives side effects of transitions. Only the writer that won
// the conditional update calls it, so each event fires at most once per
// capsule. Delivery is best effort.
type Notifier interface {
	CapsuleReady(ctx context.Context, c *capsule.Capsule)
	SenderRevealed(ctx context.Context, c *capsule.Capsule)
}

// LogNotifier records notifications as log lines. Delivery to users is an
// external concern.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) CapsuleReady(_ context.Context, c *capsule.Capsule) {
	n.Log.Info().
		Str("event", "capsule_ready").
		Str("capsule_id", c.ID).
		Str("recipient_id", c.RecipientID).
		Int64("unlocks_at", c.UnlocksAt).
		Msg("capsule ready to open")
}

func (n LogNotifier) SenderRevealed(_ context.Context, c *capsule.Capsule) {
	n.Log.Info().
		Str("event", "sender_revealed").
		Str("capsule_id", c.ID).
		Str("recipient_id", c.RecipientID).
		Msg("anonymous sender revealed")
}
