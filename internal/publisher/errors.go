package publisher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schedulehq/publisher/internal/models"
)

// Kind classifies a publish failure so the orchestrator does not have to
// pattern-match message strings to decide whether to retry.
type Kind int

const (
	// KindPermanent is a failure that will not resolve on its own and is
	// not credential-related.
	KindPermanent Kind = iota
	// KindTransient is expected to possibly succeed if retried later.
	KindTransient
	// KindAuth means the stored credential or grant is no longer valid.
	KindAuth
	// KindConfig is a missing prerequisite (no page, no business account,
	// no owner URN) that retrying cannot fix.
	KindConfig
)

type Error struct {
	Kind     Kind
	Provider models.Provider
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, provider models.Provider, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			e.Err = err
		}
	}
	return e
}

func Permanent(provider models.Provider, format string, args ...interface{}) *Error {
	return newError(KindPermanent, provider, format, args...)
}

func Transient(provider models.Provider, format string, args ...interface{}) *Error {
	return newError(KindTransient, provider, format, args...)
}

func Auth(provider models.Provider, format string, args ...interface{}) *Error {
	return newError(KindAuth, provider, format, args...)
}

func Config(provider models.Provider, format string, args ...interface{}) *Error {
	return newError(KindConfig, provider, format, args...)
}

// fromStatus classifies an HTTP failure by status code: 5xx and 429 are
// retryable, 401/403 are credential problems, anything else is permanent.
func fromStatus(provider models.Provider, status int, message string) *Error {
	switch {
	case status >= 500 || status == 429:
		return Transient(provider, "%s", message)
	case status == 401 || status == 403:
		return Auth(provider, "%s", message)
	default:
		return Permanent(provider, "%s", message)
	}
}

var transientPatterns = []string{
	"429",
	"rate limit",
	"temporar",
	"timeout",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

var authPatterns = []string{
	"unauthorized",
	"forbidden",
	"not permitted",
	"invalid credentials",
	"expired token",
	"invalid token",
	"missing scope",
	"oauth",
	"session invalid",
}

// IsTransient reports whether an error should be retried with backoff. A
// structured Error answers directly; anything else (wrapped transport
// errors) falls back to message-text matching.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return matchesAny(err, transientPatterns)
}

// IsAuth reports whether an error indicates a revoked or invalid grant.
func IsAuth(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindAuth
	}
	return matchesAny(err, authPatterns)
}

func matchesAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
