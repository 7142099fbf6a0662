package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNoResults     = errors.New("no acceptable results")
	ErrResolution    = errors.New("movie resolution failed")
	ErrInvalidQuery  = errors.New("query is required")
	ErrInvalidMovie  = errors.New("movie id is required")
	ErrNoProviders   = errors.New("no search providers configured")
	ErrInvalidOffset = errors.New("offset must be >= 0")
)

// ResolutionError reports a candidate that could not be matched to any
// catalog entry.
type ResolutionError struct {
	Title string
	Year  int
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %q (%d): %s", e.Title, e.Year, ErrResolution)
	}
	return fmt.Sprintf("resolve %q (%d): %v", e.Title, e.Year, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// TransientError marks a collaborator failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient returns true for failures that may succeed on retry:
// timeouts, connection resets, EOF, throttling and upstream 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "tls") ||
		strings.Contains(lower, "eof")
}
