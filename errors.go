// Package terralens provides a Go client for the TerraLens Earth-observation
// visualization API: job submission, real-time progress tracking with a polling
// fallback, result retrieval, export, and cancellation.
package terralens

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error represents an error response from the TerraLens API with the HTTP
// status code and the server's detail message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("terralens: server error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsBadRequest returns true if the error is a 400.
func IsBadRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsServerError returns true if the error is a 5xx.
func IsServerError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode >= 500
	}
	return false
}

// ValidationErrors maps request field names (json tags) to human-readable
// problems found before any network call.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "terralens: invalid request: " + strings.Join(parts, "; ")
}

// AsValidationErrors unwraps err into a ValidationErrors map, if it is one.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// ErrJobActive is returned by Session.Submit while a previous job is still
// pending or running. The session tracks exactly one job at a time.
var ErrJobActive = errors.New("terralens: a job is already active in this session")

// ErrNoJob is returned by operations that need a tracked job when the session
// is idle.
var ErrNoJob = errors.New("terralens: no active job in this session")

// ErrNotCompleted is returned when a preview or export is requested for a job
// that has not reached the completed state.
var ErrNotCompleted = errors.New("terralens: job is not completed")
