package keylio

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced to callers. Every error leaving the client
// carries exactly one of these.
const (
	CodeMissingCredentials     = "MISSING_CREDENTIALS"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeUserExists             = "USER_EXISTS"
	CodeModelNotFound          = "MODEL_NOT_FOUND"
	CodeProviderNotImplemented = "PROVIDER_NOT_IMPLEMENTED"
	CodeUnsupportedAuthType    = "UNSUPPORTED_AUTH_TYPE"
	CodeInvalidStrategy        = "INVALID_STRATEGY"
	CodeUnexpectedError        = "UNEXPECTED_ERROR"
	CodeWeakPassword           = "WEAK_PASSWORD"
)

// AuthError is the single error type crossing the public boundary. It pairs
// a stable machine-readable code with a human message and never carries a
// stack trace.
type AuthError struct {
	Code     string
	Message  string
	Metadata map[string]any
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError builds an AuthError with the given code and message.
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// Errorf builds an AuthError with a formatted message.
func Errorf(code, format string, args ...any) *AuthError {
	return &AuthError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsAuthError unwraps err into an *AuthError if it is one.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// WrapUnexpected classifies err at the client boundary. Provider-level
// AuthErrors pass through unchanged; anything else is wrapped once as
// UNEXPECTED_ERROR, preserving the original message. Never double-wraps.
func WrapUnexpected(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsAuthError(err); ok {
		return err
	}
	return &AuthError{Code: CodeUnexpectedError, Message: err.Error()}
}

// ErrMissingSecret is returned by New when no session secret is configured.
// There is deliberately no fallback secret.
var ErrMissingSecret = errors.New("keylio: session secret is required")
