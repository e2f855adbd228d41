package capsule

import (
	"strings"
	"testing"

	"github.com/hpungsan/keepsake/internal/errors"
)

func sealed() *Capsule {
	return &Capsule{
		ID:          "c1",
		SenderID:    "alice",
		RecipientID: "bob",
		Status:      Sealed,
		UnlocksAt:   1000,
	}
}

func wantCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	if code == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	if !errors.Is(err, code) {
		t.Fatalf("error = %v, want %s", err, code)
	}
}

func TestCheckOpen(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Capsule)
		caller string
		now    int64
		want   errors.ErrorCode
	}{
		{"sealed before unlock", func(*Capsule) {}, "bob", 999, errors.ErrNotReady},
		{"sealed but unlock passed", func(*Capsule) {}, "bob", 1000, ""},
		{"ready", func(c *Capsule) { c.Status = Ready }, "bob", 1500, ""},
		{"wrong caller", func(c *Capsule) { c.Status = Ready }, "mallory", 1500, errors.ErrForbidden},
		{"sender cannot open", func(c *Capsule) { c.Status = Ready }, "alice", 1500, errors.ErrForbidden},
		{"already opened", func(c *Capsule) {
			c.Status = Opened
			c.OpenedAt = ptr(int64(1200))
		}, "bob", 1500, errors.ErrAlreadyOpened},
		{"withdrawn", func(c *Capsule) {
			c.Status = Expired
			c.DeletedAt = ptr(int64(900))
		}, "bob", 1500, errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sealed()
			tt.mutate(c)
			wantCode(t, CheckOpen(c, tt.caller, tt.now), tt.want)
		})
	}
}

func TestOpenPlan(t *testing.T) {
	c := sealed()
	openedAt, revealAt := OpenPlan(c, 1234)
	if openedAt != 1234 || revealAt != nil {
		t.Errorf("signed OpenPlan = %d,%v", openedAt, revealAt)
	}

	c.IsAnonymous = true
	c.RevealDelaySeconds = ptr(int64(600))
	openedAt, revealAt = OpenPlan(c, 1234)
	if openedAt != 1234 || revealAt == nil || *revealAt != 1834 {
		t.Errorf("anonymous OpenPlan = %d,%v want 1234,1834", openedAt, revealAt)
	}
}

func TestCheckWithdraw(t *testing.T) {
	c := sealed()
	wantCode(t, CheckWithdraw(c, "alice"), "")
	wantCode(t, CheckWithdraw(c, "bob"), errors.ErrForbidden)

	c.Status = Ready
	wantCode(t, CheckWithdraw(c, "alice"), "")

	c.Status = Opened
	c.OpenedAt = ptr(int64(1100))
	wantCode(t, CheckWithdraw(c, "alice"), errors.ErrAlreadyOpened)

	gone := sealed()
	gone.Status = Expired
	gone.DeletedAt = ptr(int64(10))
	wantCode(t, CheckWithdraw(gone, "alice"), "")
}

func TestCheckSealedForSender(t *testing.T) {
	c := sealed()
	wantCode(t, CheckSealedForSender(c, "alice", 999), "")
	wantCode(t, CheckSealedForSender(c, "bob", 999), errors.ErrForbidden)

	// unlock time passed but no sweep has run yet
	wantCode(t, CheckSealedForSender(c, "alice", 1000), errors.ErrNotSealed)

	c.Status = Ready
	wantCode(t, CheckSealedForSender(c, "alice", 500), errors.ErrNotSealed)

	w := sealed()
	w.DeletedAt = ptr(int64(1))
	w.Status = Expired
	wantCode(t, CheckSealedForSender(w, "alice", 500), errors.ErrNotFound)
}

func TestCheckUpdateFields(t *testing.T) {
	wantCode(t, CheckUpdateFields([]string{"title", "body", "theme"}), "")
	wantCode(t, CheckUpdateFields(nil), "")

	for _, field := range []string{"status", "opened_at", "openedAt", "revealAt", "sender_revealed_at", "unlocksAt", "Status"} {
		err := CheckUpdateFields([]string{"title", field})
		kErr, ok := errors.As(err)
		if !ok || kErr.Code != errors.ErrValidation {
			t.Fatalf("field %q: error = %v, want VALIDATION", field, err)
		}
		if !strings.Contains(kErr.Message, "lifecycle") {
			t.Errorf("field %q: message %q should mention lifecycle transitions", field, kErr.Message)
		}
	}

	err := CheckUpdateFields([]string{"recipient_id", "is_anonymous"})
	kErr, ok := errors.As(err)
	if !ok || kErr.Code != errors.ErrValidation {
		t.Fatalf("unknown fields: error = %v, want VALIDATION", err)
	}
	if !strings.Contains(kErr.Message, "is_anonymous, recipient_id") {
		t.Errorf("message %q should list rejected fields", kErr.Message)
	}
}
