package relay

import (
	"fmt"
	"net/http"
)

// statusError pairs an error with the HTTP status it should produce,
// tagged with the channel path it occurred on. It mirrors the teacher
// library's tagged-error pattern (there: task id/index; here: channel path
// and the request that failed), so handler logging and responses are always
// derived from one place instead of handlers improvising status codes.
type statusError struct {
	status int
	path   string
	err    error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay: %s: %v", e.path, e.err)
}

func (e *statusError) Unwrap() error { return e.err }

func badRequest(path string, err error) *statusError {
	return &statusError{status: http.StatusBadRequest, path: path, err: err}
}

func preconditionFailed(path string, err error) *statusError {
	return &statusError{status: http.StatusPreconditionFailed, path: path, err: err}
}

func gone(path string, err error) *statusError {
	return &statusError{status: http.StatusGone, path: path, err: err}
}

func internal(path string, err error) *statusError {
	return &statusError{status: http.StatusInternalServerError, path: path, err: err}
}
