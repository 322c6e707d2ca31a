package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry stops immediately. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Retry calls fn up to 1+retries times with exponential backoff from base,
// passing the 1-based attempt number. It stops on success, on a Permanent
// error, or when ctx ends.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(ctx context.Context, attempt int) error) error {
	attempts := 1 + max(retries, 0)
	var lastErr error
	for i := range attempts {
		if i > 0 {
			if err := Sleep(ctx, base, i); err != nil {
				return fmt.Errorf("canceled during backoff: %w (last error: %w)", err, lastErr)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}

		lastErr = fn(ctx, i+1)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return fmt.Errorf("non-retriable: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
