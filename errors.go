package session

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeNoIdentity        = "NO_IDENTITY"
	textCodeQueryFailed       = "ORG_QUERY_FAILED"
	textCodeQueryTimeout      = "ORG_QUERY_TIMEOUT"
	textCodeOrgNotFound       = "ORG_NOT_FOUND"
	textCodeInvalidTransition = "INVALID_SESSION_TRANSITION"
	textCodeInvalidCreds      = "INVALID_CREDENTIALS"
)

// ErrNoIdentity short-circuits resolution when no authenticated identity is
// available. Callers must treat it as "must sign in", not "retry".
var ErrNoIdentity = goerrors.New("no authenticated identity", goerrors.CategoryAuth).
	WithTextCode(textCodeNoIdentity).
	WithCode(goerrors.CodeUnauthorized)

// ErrQueryFailed marks a resolution strategy that faulted against the backend.
var ErrQueryFailed = goerrors.New("organization query failed", goerrors.CategoryOperation).
	WithTextCode(textCodeQueryFailed)

// ErrQueryTimeout marks a resolution step that lost the race against its timer.
var ErrQueryTimeout = goerrors.New("organization query timed out", goerrors.CategoryOperation).
	WithTextCode(textCodeQueryTimeout)

// ErrOrganizationNotFound is a valid query with no matching row.
var ErrOrganizationNotFound = goerrors.New("organization not found", goerrors.CategoryOperation).
	WithTextCode(textCodeOrgNotFound)

// ErrInvalidTransition is returned when a requested session state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials covers both unknown identifiers and bad passwords so
// callers cannot probe which accounts exist.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty password input
var ErrNoEmptyString = errors.New("empty string not allowed")

// ErrMismatchedHashAndPassword password does not match stored hash
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrNoActiveSession is returned when a session record is requested and none exists
var ErrNoActiveSession = errors.New("no active session")

// IsQueryTimeout reports whether err is (or wraps) a strategy timeout.
func IsQueryTimeout(err error) bool {
	return errors.Is(err, ErrQueryTimeout)
}

// IsNoIdentity reports whether err is the typed identity fault.
func IsNoIdentity(err error) bool {
	return errors.Is(err, ErrNoIdentity)
}

// IsOrganizationNotFound reports whether err is the typed absence of an
// organization row behind a valid query.
func IsOrganizationNotFound(err error) bool {
	return errors.Is(err, ErrOrganizationNotFound)
}
