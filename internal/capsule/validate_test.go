package capsule

import (
	"strings"
	"testing"

	"github.com/hpungsan/keepsake/internal/errors"
)

var testLimits = Limits{MaxTitleChars: 120, MaxBodyChars: 1000}

func validDraft() Draft {
	return Draft{
		SenderID:    "alice",
		RecipientID: "bob",
		Title:       "For later",
		Body:        "Open me next year.",
		UnlocksAt:   2000,
	}
}

func TestValidateDraft(t *testing.T) {
	const now = int64(1000)

	tests := []struct {
		name      string
		mutate    func(d *Draft)
		wantField string // empty = valid
	}{
		{"valid signed", func(*Draft) {}, ""},
		{"valid anonymous", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(3600))
			d.Hints = []string{"we met in Lisbon"}
		}, ""},
		{"zero delay allowed", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(0))
		}, ""},
		{"max delay allowed", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(MaxRevealDelaySeconds))
		}, ""},
		{"missing sender", func(d *Draft) { d.SenderID = " " }, "sender_id"},
		{"missing recipient", func(d *Draft) { d.RecipientID = "" }, "recipient_id"},
		{"empty body", func(d *Draft) { d.Body = "  \n" }, "body"},
		{"title too long", func(d *Draft) { d.Title = strings.Repeat("x", 121) }, "title"},
		{"body too long", func(d *Draft) { d.Body = strings.Repeat("é", 1001) }, "body"},
		{"theme too long", func(d *Draft) { d.Theme = ptr(strings.Repeat("t", MaxThemeChars+1)) }, "theme"},
		{"unlock in past", func(d *Draft) { d.UnlocksAt = now - 1 }, "unlocks_at"},
		{"unlock equals now", func(d *Draft) { d.UnlocksAt = now }, "unlocks_at"},
		{"anonymous without delay", func(d *Draft) { d.IsAnonymous = true }, "reveal_delay_seconds"},
		{"delay without anonymous", func(d *Draft) { d.RevealDelaySeconds = ptr(int64(60)) }, "reveal_delay_seconds"},
		{"negative delay", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(-1))
		}, "reveal_delay_seconds"},
		{"delay over 72h", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(MaxRevealDelaySeconds + 1))
		}, "reveal_delay_seconds"},
		{"hints on signed", func(d *Draft) { d.Hints = []string{"a"} }, "hints"},
		{"four hints", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(60))
			d.Hints = []string{"a", "b", "c", "d"}
		}, "hints"},
		{"blank hint", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(60))
			d.Hints = []string{"a", " "}
		}, "hints[1]"},
		{"hint too long", func(d *Draft) {
			d.IsAnonymous = true
			d.RevealDelaySeconds = ptr(int64(60))
			d.Hints = []string{strings.Repeat("h", MaxHintChars+1)}
		}, "hints[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			err := ValidateDraft(d, now, testLimits)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateDraft() unexpected error: %v", err)
				}
				return
			}
			kErr, ok := errors.As(err)
			if !ok || kErr.Code != errors.ErrValidation {
				t.Fatalf("ValidateDraft() = %v, want VALIDATION", err)
			}
			if got := kErr.Details["field"]; got != tt.wantField {
				t.Errorf("field = %v, want %s", got, tt.wantField)
			}
		})
	}
}

func TestValidateContent_PartialUpdate(t *testing.T) {
	if err := ValidateContent(nil, nil, nil, testLimits); err != nil {
		t.Errorf("empty update should pass: %v", err)
	}
	if err := ValidateContent(ptr("new title"), nil, nil, testLimits); err != nil {
		t.Errorf("title-only update should pass: %v", err)
	}
	if err := ValidateContent(nil, ptr(""), nil, testLimits); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("blanking body should fail, got %v", err)
	}
}
