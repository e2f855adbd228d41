package errors

import (
	"context"
	"fmt"
	"testing"
)

func TestKeepsakeError_Error(t *testing.T) {
	err := &KeepsakeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "capsule not found",
	}

	expected := "NOT_FOUND: capsule not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestConstructors_CodesAndStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *KeepsakeError
		code   ErrorCode
		status int
	}{
		{"validation", NewValidation("bad"), ErrValidation, 400},
		{"validation field", NewValidationField("title", "too long"), ErrValidation, 400},
		{"unauthorized", NewUnauthorized("who"), ErrUnauthorized, 401},
		{"forbidden", NewForbidden("nope"), ErrForbidden, 403},
		{"not connected", NewNotConnected(), ErrNotConnected, 403},
		{"not found", NewNotFound("capsule", "01ABC"), ErrNotFound, 404},
		{"share not found", NewShareNotFound(), ErrNotFound, 404},
		{"not ready", NewNotReady(100), ErrNotReady, 409},
		{"not sealed", NewNotSealed("opened"), ErrNotSealed, 409},
		{"already opened", NewAlreadyOpened(), ErrAlreadyOpened, 409},
		{"not anonymous", NewNotAnonymous(), ErrNotAnonymous, 409},
		{"conflict", NewConflict("x"), ErrConflict, 409},
		{"quota", NewQuotaExceeded(5, "24h"), ErrQuotaExceeded, 429},
		{"rate limited", NewRateLimited(), ErrRateLimited, 429},
		{"unknown outcome", NewUnknownOutcome(context.DeadlineExceeded), ErrUnknownOutcome, 504},
		{"internal", NewInternal(fmt.Errorf("boom")), ErrInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Status != tt.status {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.status)
			}
		})
	}
}

func TestNewValidationField_Details(t *testing.T) {
	err := NewValidationField("hints", "at most 3 hints")
	if err.Details["field"] != "hints" {
		t.Errorf("Details[field] = %v, want %q", err.Details["field"], "hints")
	}
	if err.Message != "hints: at most 3 hints" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestShareNotFound_NoIdentifier(t *testing.T) {
	err := NewShareNotFound()
	if err.Details != nil {
		t.Errorf("share not found must not carry details, got %v", err.Details)
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestRetryable(t *testing.T) {
	if !NewUnknownOutcome(nil).Retryable() {
		t.Error("UNKNOWN_OUTCOME should be retryable")
	}
	if NewInternal(nil).Retryable() {
		t.Error("INTERNAL should not be retryable")
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("capsule", "x")

	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrForbidden) {
		t.Error("Is(err, ErrForbidden) = true, want false")
	}
	if Is(fmt.Errorf("plain"), ErrNotFound) {
		t.Error("Is(plain error) = true, want false")
	}
	if Is(nil, ErrNotFound) {
		t.Error("Is(nil) = true, want false")
	}
}

func TestIs_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("open capsule: %w", NewAlreadyOpened())
	if !Is(wrapped, ErrAlreadyOpened) {
		t.Error("Is should unwrap")
	}
	kErr, ok := As(wrapped)
	if !ok || kErr.Status != 409 {
		t.Errorf("As() = %v, %v", kErr, ok)
	}
}
