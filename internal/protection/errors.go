package protection

import (
	"errors"
	"fmt"
	"time"
)

// ErrCaptchaRequired is a control signal, not a failure: the caller must
// retry the same registration carrying a solved CAPTCHA token.
var ErrCaptchaRequired = errors.New("captcha required")

// ErrRegistrationDisabled is returned while the kill-switch is down.
var ErrRegistrationDisabled = errors.New("registration is temporarily disabled")

// ValidationError reports malformed input with field-level detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitError carries retry timing for the 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

// SecurityError covers blocked IPs, blacklisted domains and failed CAPTCHA
// verification. Trigger stays internal; the HTTP layer surfaces a uniform
// 403 so callers cannot probe which defense fired.
type SecurityError struct {
	Trigger string
}

func (e *SecurityError) Error() string {
	return "registration denied: " + e.Trigger
}

// ConflictError is the one user-facing rejection surfaced plainly: the
// account already exists.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
