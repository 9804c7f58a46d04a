// Package retry reruns an operation after transient failures.
//
// The wait between attempts doubles each time, with a random spread so
// callers that fail together do not come back together.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError marks a failure that further attempts cannot fix. Do
// stops immediately and returns the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs fn until it returns nil, returns a permanent error, attempts
// are used up, or ctx ends. attempts below 1 means a single attempt.
// base is the wait before the first rerun; each later wait doubles it,
// spread by up to a quarter in either direction.
func Do(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := wait(ctx, spread(base<<(i-1))); err != nil {
				return err
			}
		}

		last = fn()
		if last == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(last, &perm) {
			return perm.Err
		}
	}
	return last
}

// spread returns d shifted by a random amount within +-d/4.
func spread(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	quarter := int64(d / 4)
	if quarter == 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*quarter+1)-quarter)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
