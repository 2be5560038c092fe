package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind categorizes a provider failure for retry decisions.
type ErrorKind string

const (
	// KindRateLimited indicates throttling (HTTP 429).
	KindRateLimited ErrorKind = "rate_limited"

	// KindMissingSecret indicates the credential was absent before any
	// network call was attempted.
	KindMissingSecret ErrorKind = "missing_secret"

	// KindAuth indicates authentication failure (HTTP 401, 403).
	KindAuth ErrorKind = "auth"

	// KindTimeout indicates a request timeout.
	KindTimeout ErrorKind = "timeout"

	// KindServerError indicates server-side issues (HTTP 5xx).
	KindServerError ErrorKind = "server_error"

	// KindInvalidRequest indicates client-side issues (HTTP 400).
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindModelUnavailable indicates the model does not exist or is
	// not accessible.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindContentFilter indicates the response was blocked by safety
	// filters.
	KindContentFilter ErrorKind = "content_filter"

	// KindUnknown is an unclassified error.
	KindUnknown ErrorKind = "unknown"
)

// IsRetryable reports whether retrying the same request may succeed.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindServerError:
		return true
	default:
		return false
	}
}

// Error is a structured provider failure carrying what retry and
// backoff logic need.
type Error struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string

	// RetryAfter is the server-requested wait, when one was given.
	RetryAfter time.Duration

	// Attempts is how many tries were made before giving up. Zero for
	// errors that never went through the retry loop.
	Attempts int

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause with string-based classification. Builders
// refine the kind when better signals exist.
func NewError(provider, model string, cause error) *Error {
	e := &Error{
		Kind:     KindUnknown,
		Provider: provider,
		Model:    model,
		Cause:    cause,
	}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = Classify(cause)
	}
	return e
}

// NewMissingSecret reports an absent credential. No request was made.
func NewMissingSecret(provider, secretID string) *Error {
	return &Error{
		Kind:     KindMissingSecret,
		Provider: provider,
		Message:  fmt.Sprintf("credential %s is not configured", secretID),
	}
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if kind := classifyStatus(status); kind != KindUnknown {
		e.Kind = kind
	}
	return e
}

// WithKind overrides the classification.
func (e *Error) WithKind(kind ErrorKind) *Error {
	e.Kind = kind
	return e
}

// WithRetryAfter records the server-requested wait.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithAttempts records how many tries were made.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// WithMessage overrides the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// Classify maps an arbitrary error onto an ErrorKind by inspecting
// its text. Typed errors are preferred; this is the fallback for SDK
// errors that expose nothing structured.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "context deadline"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return KindRateLimited
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid_api_key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "content_filter"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "safety"):
		return KindContentFilter
	case strings.Contains(msg, "model not found"),
		strings.Contains(msg, "model_not_found"),
		strings.Contains(msg, "does not exist"):
		return KindModelUnavailable
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "529"):
		return KindServerError
	default:
		return KindUnknown
	}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status == http.StatusNotFound:
		return KindModelUnavailable
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool {
	if perr, ok := AsError(err); ok {
		return perr.Kind == KindRateLimited
	}
	return Classify(err) == KindRateLimited
}

// IsMissingSecret reports whether err means a credential was absent.
func IsMissingSecret(err error) bool {
	perr, ok := AsError(err)
	return ok && perr.Kind == KindMissingSecret
}
