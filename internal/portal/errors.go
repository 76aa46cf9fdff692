package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginFailed covers rejected credentials and unverifiable logins.
	ErrLoginFailed = errors.New("portal: login failed")
	// ErrLoginTimeout means the whole login ran past its wall-clock budget.
	ErrLoginTimeout = errors.New("portal: login timed out")
	// ErrSessionInvalid means the portal no longer honors the session cookies.
	ErrSessionInvalid = errors.New("portal: session invalid")
	// ErrPortalUnreachable wraps network level failures.
	ErrPortalUnreachable = errors.New("portal: unreachable")
	// ErrUnexpectedPage means a page did not have the expected structure.
	ErrUnexpectedPage = errors.New("portal: unexpected page")
)

// LoginError describes why one login attempt or the whole login failed.
type LoginError struct {
	Reason   string
	Phase    Phase
	Attempts int
	Err      error
}

func (e *LoginError) Error() string {
	msg := fmt.Sprintf("portal: login failed at %s: %s", e.Phase, e.Reason)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrLoginFailed and the underlying cause.
func (e *LoginError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLoginFailed}
	}
	return []error{ErrLoginFailed, e.Err}
}

// PageError reports a page whose markup did not match expectations.
type PageError struct {
	Page   string
	Reason string
}

func (e *PageError) Error() string {
	return fmt.Sprintf("portal: %s page: %s", e.Page, e.Reason)
}

func (e *PageError) Unwrap() error { return ErrUnexpectedPage }
