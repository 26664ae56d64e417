// Package retry executes fallible remote operations with bounded retries.
//
// Failures are classified into a closed set of kinds: transient failures
// (network timeouts, reset/aborted connections) are retried with a
// policy-defined delay, everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

type Kind int

const (
	KindFatal Kind = iota
	KindTransient
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable regardless of its underlying type.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindTransient, err: err}
}

// Classify maps err to its retry kind. Unmarked errors are inspected for
// well-known network failure modes; anything unrecognized is fatal.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindFatal
}

// Backoff defines how many attempts an operation gets and how long to wait
// between them.
type Backoff interface {
	Attempts() int
	Delay(attempt int) time.Duration
}

// Exponential waits Base * 2^attempt between attempts. Used for record
// store operations.
type Exponential struct {
	Base        time.Duration
	MaxAttempts int
}

func (b Exponential) Attempts() int {
	return b.MaxAttempts
}

func (b Exponential) Delay(attempt int) time.Duration {
	return b.Base << uint(attempt)
}

// Linear waits 1+2*attempt seconds between attempts. Used for supplier
// HTTP calls.
type Linear struct {
	MaxAttempts int
}

func (b Linear) Attempts() int {
	return b.MaxAttempts
}

func (b Linear) Delay(attempt int) time.Duration {
	return time.Duration(1+2*attempt) * time.Second
}

// Do runs op until it succeeds, fails fatally, or the attempt budget is
// exhausted. The last error is surfaced unchanged so callers can decide
// whether to skip, log, or abort the current cycle.
func Do[T any](ctx context.Context, backoff Backoff, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < backoff.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry canceled: %w", err)
		}
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if Classify(err) != KindTransient {
			return zero, err
		}
		if attempt+1 == backoff.Attempts() {
			break
		}
		if err := SleepCtx(ctx, backoff.Delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, backoff Backoff, op func(ctx context.Context) error) error {
	_, err := Do(ctx, backoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
