// Package errors defines the structured error codes surfaced by the API.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure class that clients can branch on.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates a missing or invalid identity token.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodePermissionDenied indicates the caller is not allowed to act on
	// the target item.
	ErrCodePermissionDenied ErrorCode = "permission_denied"
	// ErrCodeNotFound indicates the target item does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	// ErrCodeDuplicateItem indicates the poster already has an identical
	// open report.
	ErrCodeDuplicateItem ErrorCode = "duplicate_item"
	// ErrCodeAlreadyClaimed indicates the item was claimed before the
	// caller's attempt.
	ErrCodeAlreadyClaimed ErrorCode = "already_claimed"
	// ErrCodeQRInvalid indicates an unknown or already consumed claim token.
	ErrCodeQRInvalid ErrorCode = "qr_invalid"
	// ErrCodeQRExpired indicates the claim token's validity window passed.
	ErrCodeQRExpired ErrorCode = "qr_expired"
	// ErrCodeRateLimitExceeded indicates the caller sent too many requests.
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	// ErrCodeInternal indicates an unexpected server failure.
	ErrCodeInternal ErrorCode = "internal"
)

// DomainError carries an error code through the service layer so handlers
// can map it to an HTTP status.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the code to its response status.
func (e *DomainError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidArgument, ErrCodeQRInvalid, ErrCodeQRExpired:
		return http.StatusBadRequest
	case ErrCodeDuplicateItem, ErrCodeAlreadyClaimed:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors.

func Unauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrCodeUnauthorized, Message: msg}
}

func PermissionDenied(msg string) *DomainError {
	return &DomainError{Code: ErrCodePermissionDenied, Message: msg}
}

func NotFound(msg string) *DomainError {
	return &DomainError{Code: ErrCodeNotFound, Message: msg}
}

func InvalidArgument(msg string) *DomainError {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: msg}
}

func DuplicateItem(msg string) *DomainError {
	return &DomainError{Code: ErrCodeDuplicateItem, Message: msg}
}

func AlreadyClaimed(msg string) *DomainError {
	return &DomainError{Code: ErrCodeAlreadyClaimed, Message: msg}
}

func QRInvalid(msg string) *DomainError {
	return &DomainError{Code: ErrCodeQRInvalid, Message: msg}
}

func QRExpired(msg string) *DomainError {
	return &DomainError{Code: ErrCodeQRExpired, Message: msg}
}

func RateLimitExceeded(msg string) *DomainError {
	return &DomainError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

func Internal(msg string, cause error) *DomainError {
	return &DomainError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// IsCode checks if an error carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error, falling back to
// the provided default for plain errors.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr.Code
	}
	return defaultCode
}
