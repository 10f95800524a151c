package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Machine codes carried by AuthError. Codes returned verbatim by the identity
// service are passed through; these are the ones Pathlet reasons about.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeLoginFailed        = "LOGIN_FAILED"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeRateLimited        = "over_request_rate_limit"
	CodeNetwork            = "network_error"
	CodeValidation         = "validation_failed"
	CodeNoSession          = "session_not_found"
	CodeUnknown            = "unknown"
)

// Messages the identity service uses for the two cases users must be told apart.
const (
	MessageInvalidCredentials = "Invalid login credentials"
	MessageEmailNotConfirmed  = "Email not confirmed"
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = &AuthError{Code: CodeNoSession, Message: "No user is currently logged in"}

// AuthError is a failure reported by the identity collaborator.
type AuthError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the exported sentinels.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// InvalidCredentials reports the wrong email/password case.
func (e *AuthError) InvalidCredentials() bool {
	return e.Code == CodeInvalidCredentials ||
		e.Code == CodeLoginFailed ||
		e.Message == MessageInvalidCredentials
}

// EmailNotConfirmed reports the unconfirmed account case.
func (e *AuthError) EmailNotConfirmed() bool {
	return e.Code == CodeEmailNotConfirmed || e.Message == MessageEmailNotConfirmed
}

// RateLimited reports throttling by the identity service.
func (e *AuthError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests ||
		strings.Contains(e.Code, "rate_limit") ||
		strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// AsAuthError converts any error into an AuthError, wrapping foreign errors as unknown.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return &AuthError{Code: CodeUnknown, Message: err.Error(), Err: err}
}

func networkError(err error) *AuthError {
	return &AuthError{Code: CodeNetwork, Message: "unable to reach the identity service", Err: err}
}
