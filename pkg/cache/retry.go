package cache

import (
	"context"
	"errors"
	"time"
)

// RetryAttempts is the number of tries RetryWithBackoff makes.
var RetryAttempts = 3

// RetryDelay is the wait after the first failed try. It doubles after each
// further failure.
var RetryDelay = time.Second

// RetryableError marks a transient failure, such as a dropped connection to
// the index or a 5xx response.
type RetryableError struct{ Err error }

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err or anything it wraps was marked Retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryWithBackoff calls fn until it succeeds, returns an error that is not
// Retryable, or RetryAttempts tries are used up. The last error is returned.
// Cancelling ctx ends the wait early with ctx.Err().
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error
	delay := RetryDelay
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil || !IsRetryable(err) || attempt >= RetryAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
