package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrUnavailable means every strategy in the source chain was exhausted.
	ErrUnavailable = errors.New("data unavailable")
	// ErrUnknownSource is returned, wrapped in ErrUnavailable, for an unrecognized source.
	ErrUnknownSource = fmt.Errorf("%w: unknown source", ErrUnavailable)
	// ErrEmptyResult means a provider answered without any rows.
	ErrEmptyResult = errors.New("empty result")
	// ErrMissingField means a provider answer lacks a required field or column.
	ErrMissingField = errors.New("missing expected field")
	// ErrNotApplicable means a strategy cannot serve the request at all (no symbol mapping,
	// no lookup name, vendor reports no such instrument). The chain moves on without retrying.
	ErrNotApplicable = errors.New("strategy not applicable")
)

// RecoverableError marks a transient failure worth retrying.
type RecoverableError struct {
	Op  string
	Err error
}

func (e *RecoverableError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RecoverableError) Unwrap() error { return e.Err }

func recoverable(op string, err error) error {
	return &RecoverableError{Op: op, Err: err}
}

// IsRecoverable reports whether err belongs to the retryable class: network, timeout or
// connection failures, empty results and missing fields. Cancellation of the caller's context
// is never recoverable.
func IsRecoverable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var re *RecoverableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, ErrEmptyResult) || errors.Is(err, ErrMissingField) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// statusError classifies a non-2xx HTTP status: throttling and server errors are recoverable,
// 404 means the vendor has no such instrument, anything else is a hard failure.
func statusError(op string, code int, body []byte) error {
	if len(body) > 200 {
		body = body[:200]
	}
	err := fmt.Errorf("status %d, body: %s", code, string(body))
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return recoverable(op, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", op, ErrNotApplicable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
