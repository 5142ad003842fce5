package remoteconfig

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingProjectID is returned by New when neither an explicit project ID nor
	// FIREBASE_PROJECT_ID is available.
	ErrMissingProjectID = errors.New("remoteconfig: project id not set")

	// ErrAuth indicates the TokenProvider could not supply a credential.
	// No request was sent.
	ErrAuth = errors.New("remoteconfig: credential unavailable")

	// ErrPreconditionMissing is returned by Update when called without a version.
	// Obtain one with Read first.
	ErrPreconditionMissing = errors.New("remoteconfig: update requires a version from a prior read")

	// ErrVersionConflict indicates the server rejected a conditional write because the
	// template changed since the supplied version was read. Re-read and retry.
	ErrVersionConflict = errors.New("remoteconfig: version conflict")

	// ErrTransport covers network failures and non-2xx responses other than a version conflict.
	ErrTransport = errors.New("remoteconfig: transport failure")

	// ErrTimeout is the timeout variant of ErrTransport. Errors matching ErrTimeout
	// also match ErrTransport.
	ErrTimeout = errors.New("remoteconfig: request timed out")

	// ErrDecode indicates the response body is not a JSON object.
	ErrDecode = errors.New("remoteconfig: malformed response body")
)

// StatusError describes a non-2xx response. It is wrapped by either ErrVersionConflict or
// ErrTransport.
type StatusError struct {
	Method     string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s returned %d %s", e.Method, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		msg += ": " + truncate(string(e.Body), 512)
	}
	return msg
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsRetryable reports whether a caller may reasonably retry after err: version conflicts
// (after a fresh read) and transient transport failures.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrTimeout) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return errors.Is(err, ErrTransport)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
