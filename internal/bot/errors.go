package bot

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	ErrorValidation          ErrorCode = "VALIDATION"
	ErrorNotRegistered       ErrorCode = "NOT_REGISTERED"
	ErrorRecipientUnresolved ErrorCode = "RECIPIENT_UNRESOLVED"
	ErrorUpstream            ErrorCode = "UPSTREAM"
)

// Error carries a machine-readable code and reason for logging and metrics.
// User-facing text is decided where the failure occurs, not here.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("bot: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("bot: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// outcomeLabel maps a workflow result to the metrics outcome label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) && cmdErr != nil {
		return strings.ToLower(string(cmdErr.Code))
	}
	return "error"
}

// upstreamStatus extracts the HTTP status carried anywhere in an upstream
// error chain, or 0 when the failure was not a status response. Both the chat
// and payment clients tag non-2xx responses this way.
func upstreamStatus(err error) int {
	var coded interface{ HTTPStatusCode() int }
	if errors.As(err, &coded) {
		return coded.HTTPStatusCode()
	}
	return 0
}

// credentialsRejected reports whether the upstream refused the stored
// credentials outright. Retrying cannot help; the user has to register again.
func credentialsRejected(err error) bool {
	switch upstreamStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
