package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Keepsake error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION"      // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrForbidden      ErrorCode = "FORBIDDEN"       // 403
	ErrNotConnected   ErrorCode = "NOT_CONNECTED"   // 403
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrNotReady       ErrorCode = "NOT_READY"       // 409
	ErrNotSealed      ErrorCode = "NOT_SEALED"      // 409
	ErrAlreadyOpened  ErrorCode = "ALREADY_OPENED"  // 409
	ErrNotAnonymous   ErrorCode = "NOT_ANONYMOUS"   // 409
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrQuotaExceeded  ErrorCode = "QUOTA_EXCEEDED"  // 429
	ErrRateLimited    ErrorCode = "RATE_LIMITED"    // 429
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrUnknownOutcome ErrorCode = "UNKNOWN_OUTCOME" // 504
)

// KeepsakeError represents a structured error with code, status, and details.
type KeepsakeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *KeepsakeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the caller may safely repeat the operation.
func (e *KeepsakeError) Retryable() bool {
	return e.Code == ErrUnknownOutcome
}

// NewValidation creates a 400 error for malformed input.
func NewValidation(msg string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewValidationField creates a 400 error naming the offending field.
func NewValidationField(field, msg string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrValidation,
		Status:  400,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewUnauthorized creates a 401 error when no caller identity is present.
func NewUnauthorized(msg string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewForbidden creates a 403 error when the caller is not the authorized party.
func NewForbidden(msg string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewNotConnected creates a 403 error when an anonymous capsule's parties are
// not mutually connected.
func NewNotConnected() *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotConnected,
		Status:  403,
		Message: "anonymous capsules require sender and recipient to be mutually connected",
	}
}

// NewNotFound creates a 404 error for an unknown identifier.
func NewNotFound(kind, identifier string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewShareNotFound is the single error returned by public share resolution.
// Unknown, revoked, expired and withdrawn cases are deliberately identical.
func NewShareNotFound() *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "share not found",
	}
}

// NewNotReady creates a 409 error when a capsule cannot be opened yet.
func NewNotReady(unlocksAt int64) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotReady,
		Status:  409,
		Message: "capsule is not ready to open",
		Details: map[string]any{"unlocks_at": unlocksAt},
	}
}

// NewNotSealed creates a 409 error when an operation requires a sealed capsule.
func NewNotSealed(status string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotSealed,
		Status:  409,
		Message: fmt.Sprintf("capsule is not sealed (status %s)", status),
		Details: map[string]any{"status": status},
	}
}

// NewAlreadyOpened creates a 409 error when a capsule has already been opened.
func NewAlreadyOpened() *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrAlreadyOpened,
		Status:  409,
		Message: "capsule has already been opened",
	}
}

// NewNotAnonymous creates a 409 error for hint requests on a signed capsule.
func NewNotAnonymous() *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrNotAnonymous,
		Status:  409,
		Message: "capsule is not anonymous",
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewQuotaExceeded creates a 429 error when a rate limit is hit.
func NewQuotaExceeded(limit int, window string) *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrQuotaExceeded,
		Status:  429,
		Message: fmt.Sprintf("quota exceeded: at most %d per %s", limit, window),
		Details: map[string]any{"limit": limit, "window": window},
	}
}

// NewRateLimited creates a 429 error for callers that exceed a request rate.
func NewRateLimited() *KeepsakeError {
	return &KeepsakeError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: "too many requests",
	}
}

// NewUnknownOutcome creates a 504 error for store calls that timed out.
// The write may or may not have applied; conditional writes make a retry safe.
func NewUnknownOutcome(err error) *KeepsakeError {
	msg := "store call timed out; outcome unknown, safe to retry"
	if err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, err)
	}
	return &KeepsakeError{
		Code:    ErrUnknownOutcome,
		Status:  504,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *KeepsakeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &KeepsakeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a KeepsakeError with the given code.
func Is(err error, code ErrorCode) bool {
	var kErr *KeepsakeError
	if stderrors.As(err, &kErr) {
		return kErr.Code == code
	}
	return false
}

// As extracts a KeepsakeError from err.
func As(err error) (*KeepsakeError, bool) {
	var kErr *KeepsakeError
	if stderrors.As(err, &kErr) {
		return kErr, true
	}
	return nil, false
}
