package domain

import (
	"errors"
	"fmt"
)

// ErrorCode tags every expected failure in the call-control surface so callers
// can branch without string matching.
type ErrorCode string

const (
	ErrCodeInvalidPhoneNumber ErrorCode = "invalid_phone_number"
	ErrCodeAgentNotFound      ErrorCode = "agent_not_found"
	ErrCodeNoCredentials      ErrorCode = "no_credentials"
	ErrCodeAuthFailed         ErrorCode = "auth_failed"
	ErrCodeNoCallerNumber     ErrorCode = "no_caller_number"
	ErrCodeSelfCallNotAllowed ErrorCode = "self_call_not_allowed"
	ErrCodeCarrierError       ErrorCode = "carrier_error"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeAlreadyOwned       ErrorCode = "already_owned"
	ErrCodeNotAvailable       ErrorCode = "not_available"
)

// CallError is a tagged, user-presentable failure. Hint, when set, tells the
// caller how to self-correct.
type CallError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	cause   error
}

func (e *CallError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match two CallErrors by code.
func (e *CallError) Is(target error) bool {
	var other *CallError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewCallError builds a tagged error.
func NewCallError(code ErrorCode, message string) *CallError {
	return &CallError{Code: code, Message: message}
}

// NewCallErrorWithHint builds a tagged error carrying a remediation hint.
func NewCallErrorWithHint(code ErrorCode, message, hint string) *CallError {
	return &CallError{Code: code, Message: message, Hint: hint}
}

// WrapCallError builds a tagged error preserving the upstream cause.
func WrapCallError(code ErrorCode, message string, cause error) *CallError {
	return &CallError{Code: code, Message: message, cause: cause}
}

// ErrorCodeOf extracts the code from err, or empty if err is untagged.
func ErrorCodeOf(err error) ErrorCode {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return ErrorCodeOf(err) == code
}
