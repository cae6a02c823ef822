// Package fault defines the error kinds that a release run can fail with.
// Errors are constructed at the point of failure with an explicit Kind so that
// callers branch on the kind instead of inspecting opaque fields later.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for programmatic handling.
type Kind string

const (
	// KindConfig indicates a required credential or setting is missing or invalid.
	KindConfig Kind = "config"
	// KindNotFound indicates a file, section, or resource does not exist.
	KindNotFound Kind = "not_found"
	// KindToolFailed indicates the version or publish subprocess exited non-zero.
	KindToolFailed Kind = "tool_failed"
	// KindAPI indicates the hosting API returned an error response.
	KindAPI Kind = "api"
	// KindInconsistency indicates tool output contradicts the known workspace.
	KindInconsistency Kind = "inconsistency"
)

// Error is the concrete error type for all classified failures.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "changelog section" or "create release"

	// Populated for KindAPI.
	Status     int
	StatusText string
	URL        string

	Err error
}

// Error returns the operation, the HTTP details for API errors, and the cause.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Kind == KindAPI && e.Status != 0 {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%d %s (%s)", e.Status, e.StatusText, e.URL)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return string(e.Kind)
	}
	return b.String()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Config builds a KindConfig error.
func Config(op string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// ToolFailed builds a KindToolFailed error.
func ToolFailed(op string, err error) *Error {
	return &Error{Kind: KindToolFailed, Op: op, Err: err}
}

// Inconsistent builds a KindInconsistency error.
func Inconsistent(op string, err error) *Error {
	return &Error{Kind: KindInconsistency, Op: op, Err: err}
}

// API builds a KindAPI error carrying the response status and request URL.
func API(op string, status int, statusText, url string, err error) *Error {
	return &Error{Kind: KindAPI, Op: op, Status: status, StatusText: statusText, URL: url, Err: err}
}

// Is reports whether any error in err's chain is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
