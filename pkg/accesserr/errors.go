package accesserr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tags a rejection so the response layer can map it to a status code
type Kind string

const (
	KindRateLimitExceeded      Kind = "RateLimitExceeded"
	KindMissingToken           Kind = "MissingToken"
	KindInvalidToken           Kind = "InvalidToken"
	KindExpired                Kind = "Expired"
	KindAuthenticationRequired Kind = "AuthenticationRequired"
	KindForbidden              Kind = "Forbidden"
	KindValidationFailed       Kind = "ValidationFailed"

	// KindUnavailable is returned when a stage cannot reach its backing store
	// and the gate is configured to fail closed.
	KindUnavailable Kind = "Unavailable"
)

// Failure is a single field-level validation failure
type Failure struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a terminal rejection for the current request.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Failures   []Failure
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error with the same Kind, so callers can compare against
// the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrRateLimitExceeded      = &Error{Kind: KindRateLimitExceeded}
	ErrMissingToken           = &Error{Kind: KindMissingToken}
	ErrInvalidToken           = &Error{Kind: KindInvalidToken}
	ErrExpired                = &Error{Kind: KindExpired}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrUnavailable            = &Error{Kind: KindUnavailable}
)

// New creates a rejection of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a rejection that keeps the underlying cause for logging.
// The cause is never rendered to callers.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// RateLimited creates a RateLimitExceeded rejection with a retry hint
func RateLimited(policy string, retryAfter time.Duration) *Error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{
		Kind:       KindRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit exceeded for %s", policy),
		RetryAfter: retryAfter,
	}
}

// ValidationFailed creates a ValidationFailed rejection carrying every failure
func ValidationFailed(failures []Failure) *Error {
	fields := make([]string, 0, len(failures))
	for _, f := range failures {
		fields = append(fields, f.Field)
	}
	return &Error{
		Kind:     KindValidationFailed,
		Message:  "invalid fields: " + strings.Join(fields, ", "),
		Failures: failures,
	}
}

// As extracts a rejection from an error chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the rejection kind of err, or "" when err is not a rejection
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
