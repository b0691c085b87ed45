package availability

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed queries.
	ErrInvalidRequest = errors.New("invalid availability request")
	// ErrDataFetch marks collaborator I/O failures. Never reported as "no availability".
	ErrDataFetch = errors.New("availability data fetch failed")
	// ErrTimeout marks requests that ran past their deadline.
	ErrTimeout = errors.New("availability request timed out")
	// ErrCanceled marks requests abandoned by the caller.
	ErrCanceled = errors.New("availability request canceled")
)

// FetchError wraps a failed collaborator call.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDataFetch) hold for every FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrDataFetch }

// IsRetryable reports whether the caller should show a retry state rather
// than "unavailable".
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataFetch) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCanceled)
}

func fetchErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Op: op, Err: err}
}

// classify turns context expiry into the distinct timeout/cancel failures.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrDataFetch):
		return "fetch_error"
	default:
		return "error"
	}
}
