package capsule

// MaxRevealDelaySeconds bounds the anonymous reveal delay (72 hours).
const MaxRevealDelaySeconds = 259200

// AnonymousSender replaces the sender id in recipient views while the sender
// is hidden.
const AnonymousSender = "anonymous"

// Capsule is a time-locked message from a sender to a recipient.
// All timestamps are Unix seconds. Status, OpenedAt, RevealAt and
// SenderRevealedAt are written only by lifecycle transitions.
type Capsule struct {
	// ID is a ULID that uniquely identifies this capsule
	ID string `json:"id"`

	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`

	Title string  `json:"title"`
	Body  string  `json:"body"`
	Theme *string `json:"theme,omitempty"`

	Status Status `json:"status"`

	// IsAnonymous hides the sender until RevealDelaySeconds after opening.
	IsAnonymous        bool   `json:"is_anonymous"`
	RevealDelaySeconds *int64 `json:"reveal_delay_seconds,omitempty"`

	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
	UnlocksAt        int64  `json:"unlocks_at"`
	OpenedAt         *int64 `json:"opened_at,omitempty"`
	RevealAt         *int64 `json:"reveal_at,omitempty"`
	SenderRevealedAt *int64 `json:"sender_revealed_at,omitempty"`

	// DeletedAt is the withdrawal (soft delete) marker
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// Withdrawn reports whether the sender has withdrawn the capsule.
func (c *Capsule) Withdrawn() bool {
	return c.DeletedAt != nil
}

// Hints holds up to three sender-authored identity clues for an anonymous
// capsule. Populated contiguously; immutable after creation.
type Hints struct {
	LetterID string  `json:"letter_id"`
	Hint1    *string `json:"hint1,omitempty"`
	Hint2    *string `json:"hint2,omitempty"`
	Hint3    *string `json:"hint3,omitempty"`
}

// List returns the populated hints in order, stopping at the first gap.
func (h *Hints) List() []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, 3)
	for _, p := range []*string{h.Hint1, h.Hint2, h.Hint3} {
		if p == nil || *p == "" {
			break
		}
		out = append(out, *p)
	}
	return out
}

// NewHints builds a Hints record from an ordered slice. Returns nil for an
// empty slice.
func NewHints(letterID string, hints []string) *Hints {
	if len(hints) == 0 {
		return nil
	}
	h := &Hints{LetterID: letterID}
	slots := []**string{&h.Hint1, &h.Hint2, &h.Hint3}
	for i, text := range hints {
		if i >= len(slots) {
			break
		}
		v := text
		*slots[i] = &v
	}
	return h
}
