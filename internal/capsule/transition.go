package capsule

import (
	"sort"
	"strings"

	"github.com/hpungsan/keepsake/internal/errors"
)

// Transition preconditions. Each Check* function inspects a freshly read
// capsule and returns the typed error the caller should see, or nil if the
// conditional write may be attempted. They never mutate c.

// CheckOpen validates a recipient's attempt to open c at now.
func CheckOpen(c *Capsule, callerID string, now int64) error {
	if c.Withdrawn() {
		return errors.NewNotFound("capsule", c.ID)
	}
	if c.RecipientID != callerID {
		return errors.NewForbidden("only the recipient can open this capsule")
	}
	if c.OpenedAt != nil || c.Status == Opened {
		return errors.NewAlreadyOpened()
	}
	if EffectiveStatus(c, now) != Ready {
		return errors.NewNotReady(c.UnlocksAt)
	}
	return nil
}

// OpenPlan returns the values the Open write sets: opened_at = now and, for
// anonymous capsules, reveal_at = opened_at + reveal_delay_seconds.
func OpenPlan(c *Capsule, now int64) (openedAt int64, revealAt *int64) {
	return now, RevealAtFor(c, now)
}

// CheckWithdraw validates a sender's attempt to withdraw c.
// An already-withdrawn capsule passes; the caller treats it as a no-op.
func CheckWithdraw(c *Capsule, callerID string) error {
	if c.SenderID != callerID {
		return errors.NewForbidden("only the sender can withdraw this capsule")
	}
	if c.OpenedAt != nil || c.Status == Opened {
		return errors.NewAlreadyOpened()
	}
	return nil
}

// CheckSealedForSender validates sender-only operations that require the
// capsule to still be sealed at now (update, share issuance).
func CheckSealedForSender(c *Capsule, callerID string, now int64) error {
	if c.SenderID != callerID {
		return errors.NewForbidden("only the sender can modify this capsule")
	}
	if c.Withdrawn() {
		return errors.NewNotFound("capsule", c.ID)
	}
	if st := EffectiveStatus(c, now); st != Sealed || c.OpenedAt != nil || now >= c.UnlocksAt {
		return errors.NewNotSealed(st.String())
	}
	return nil
}

// mutableFields are the only request fields an update may carry.
var mutableFields = map[string]bool{
	"title": true,
	"body":  true,
	"theme": true,
}

// transitionFields are set exclusively as side effects of transitions.
var transitionFields = map[string]string{
	FieldKey("status"):             "status",
	FieldKey("opened_at"):          "opened_at",
	FieldKey("reveal_at"):          "reveal_at",
	FieldKey("sender_revealed_at"): "sender_revealed_at",
	FieldKey("unlocks_at"):         "unlocks_at",
}

// CheckUpdateFields rejects any submitted field outside title/body/theme.
// Transition-owned fields get a dedicated message.
func CheckUpdateFields(keys []string) error {
	var unknown []string
	for _, k := range keys {
		fk := FieldKey(k)
		if mutableFields[fk] {
			continue
		}
		if name, ok := transitionFields[fk]; ok {
			return errors.NewValidationField(name, "cannot be set directly; it changes only through lifecycle transitions")
		}
		unknown = append(unknown, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewValidationField(unknown[0],
			"not updatable (allowed: title, body, theme); rejected: "+strings.Join(unknown, ", "))
	}
	return nil
}
