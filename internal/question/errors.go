package question

import (
	"errors"
	"fmt"
)

// Provider error codes. They travel verbatim to clients in the `code` field.
const (
	CodeParsingError    = "PARSING_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
	CodeInvalidAPIKey   = "INVALID_API_KEY"
	CodeRateLimited     = "RATE_LIMITED"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeMissingAPIKey   = "MISSING_API_KEY"
	CodeUnknown         = "UNKNOWN_ERROR"
)

// Error is the typed failure of a generation call.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NeedsSettings is true when retrying cannot help and the user must fix the credential.
func (e *Error) NeedsSettings() bool {
	switch e.Code {
	case CodeQuotaExceeded, CodeInvalidAPIKey, CodeMissingAPIKey:
		return true
	}
	return false
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.Code == CodeRateLimited || e.Code == CodeNetworkError
}

// NewError builds a typed provider error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the provider code from any error chain.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return CodeUnknown
}

// AsError converts any error into a typed provider error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return NewError(CodeUnknown, "question generation failed", err)
}
