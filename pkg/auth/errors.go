package auth

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies flow failures.
type ErrorCode string

const (
	CodeProviderURLUnavailable ErrorCode = "PROVIDER_URL_UNAVAILABLE"
	CodeMissingCode            ErrorCode = "MISSING_CODE"
	CodeProviderError          ErrorCode = "PROVIDER_ERROR"
	CodeCSRFMismatch           ErrorCode = "CSRF_MISMATCH"
	CodeMissingStored          ErrorCode = "MISSING_STORED"
	CodeCodeExpired            ErrorCode = "CODE_EXPIRED"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeIdentityLost           ErrorCode = "IDENTITY_LOST"
	CodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	CodeNetworkFailure         ErrorCode = "NETWORK_FAILURE"
	CodeUnexpectedResponse     ErrorCode = "UNEXPECTED_RESPONSE"
	CodeSignupInProgress       ErrorCode = "SIGNUP_IN_PROGRESS"
	CodeStateUnavailable       ErrorCode = "STATE_UNAVAILABLE"
)

// Error is the structured error returned by every flow operation.
// errors.Is matches any two *Error values with the same Code.
type Error struct {
	Code       ErrorCode
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds an *Error wrapping cause.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Sentinels for errors.Is.
var (
	ErrProviderURLUnavailable = &Error{Code: CodeProviderURLUnavailable, Message: "could not obtain the authorization URL"}
	ErrMissingCode            = &Error{Code: CodeMissingCode, Message: "authorization code is missing from the redirect"}
	ErrProviderError          = &Error{Code: CodeProviderError, Message: "identity provider reported an error"}
	ErrCSRFMismatch           = &Error{Code: CodeCSRFMismatch, Message: "state parameter does not match"}
	ErrMissingStored          = &Error{Code: CodeMissingStored, Message: "no stored state for this attempt"}
	ErrCodeExpired            = &Error{Code: CodeCodeExpired, Message: "authorization code expired or already used"}
	ErrRateLimited            = &Error{Code: CodeRateLimited, Message: "identity provider is rate limiting requests"}
	ErrIdentityLost           = &Error{Code: CodeIdentityLost, Message: "signup identity could not be recovered"}
	ErrValidationFailed       = &Error{Code: CodeValidationFailed, Message: "signup fields are invalid"}
	ErrNetworkFailure         = &Error{Code: CodeNetworkFailure, Message: "network request failed"}
	ErrUnexpectedResponse     = &Error{Code: CodeUnexpectedResponse, Message: "unexpected response from backend"}
	ErrSignupInProgress       = &Error{Code: CodeSignupInProgress, Message: "signup is already being submitted"}
	ErrStateUnavailable       = &Error{Code: CodeStateUnavailable, Message: "could not persist state token"}
)

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// asFlowError passes *Error through and classifies anything else as fallback.
func asFlowError(err error, fallback ErrorCode, message string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(fallback, message, err)
}
