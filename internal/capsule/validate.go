package capsule

import (
	"fmt"

	"github.com/hpungsan/keepsake/internal/errors"
)

const (
	MaxHints      = 3
	MaxHintChars  = 60
	MaxThemeChars = 40
)

// Limits carries the configurable content bounds.
type Limits struct {
	MaxTitleChars int
	MaxBodyChars  int
}

// Draft is a capsule as submitted for creation.
type Draft struct {
	SenderID           string
	RecipientID        string
	Title              string
	Body               string
	Theme              *string
	UnlocksAt          int64
	IsAnonymous        bool
	RevealDelaySeconds *int64
	Hints              []string
}

// ValidateDraft checks every creation invariant that does not need the store
// or a collaborator. now is the creation instant.
func ValidateDraft(d Draft, now int64, lim Limits) error {
	if IsBlank(d.SenderID) {
		return errors.NewValidationField("sender_id", "is required")
	}
	if IsBlank(d.RecipientID) {
		return errors.NewValidationField("recipient_id", "is required")
	}
	if err := ValidateContent(&d.Title, &d.Body, d.Theme, lim); err != nil {
		return err
	}
	if d.UnlocksAt <= now {
		return errors.NewValidationField("unlocks_at", "must be in the future")
	}

	// is_anonymous <=> reveal_delay_seconds present
	if d.IsAnonymous && d.RevealDelaySeconds == nil {
		return errors.NewValidationField("reveal_delay_seconds", "is required for anonymous capsules")
	}
	if !d.IsAnonymous && d.RevealDelaySeconds != nil {
		return errors.NewValidationField("reveal_delay_seconds", "is only allowed for anonymous capsules")
	}
	if d.RevealDelaySeconds != nil {
		if v := *d.RevealDelaySeconds; v < 0 || v > MaxRevealDelaySeconds {
			return errors.NewValidationField("reveal_delay_seconds",
				fmt.Sprintf("must be between 0 and %d", MaxRevealDelaySeconds))
		}
	}

	if len(d.Hints) > 0 && !d.IsAnonymous {
		return errors.NewValidationField("hints", "are only allowed for anonymous capsules")
	}
	if len(d.Hints) > MaxHints {
		return errors.NewValidationField("hints", fmt.Sprintf("at most %d hints", MaxHints))
	}
	for i, h := range d.Hints {
		if IsBlank(h) {
			return errors.NewValidationField(fmt.Sprintf("hints[%d]", i), "must not be empty")
		}
		if CountChars(h) > MaxHintChars {
			return errors.NewValidationField(fmt.Sprintf("hints[%d]", i),
				fmt.Sprintf("exceeds %d characters", MaxHintChars))
		}
	}
	return nil
}

// ValidateContent checks the mutable content fields. Nil pointers are
// skipped so the same rules serve partial updates.
func ValidateContent(title, body, theme *string, lim Limits) error {
	if title != nil && lim.MaxTitleChars > 0 && CountChars(*title) > lim.MaxTitleChars {
		return errors.NewValidationField("title", fmt.Sprintf("exceeds %d characters", lim.MaxTitleChars))
	}
	if body != nil {
		if IsBlank(*body) {
			return errors.NewValidationField("body", "must not be empty")
		}
		if lim.MaxBodyChars > 0 && CountChars(*body) > lim.MaxBodyChars {
			return errors.NewValidationField("body", fmt.Sprintf("exceeds %d characters", lim.MaxBodyChars))
		}
	}
	if theme != nil && CountChars(*theme) > MaxThemeChars {
		return errors.NewValidationField("theme", fmt.Sprintf("exceeds %d characters", MaxThemeChars))
	}
	return nil
}
