package wire

import (
	"context"
	"errors"
	"time"
)

// Policy is the shared "attempts x delay" loop used by the roundtrip, the
// session acquisition and the command body. Retries == n means up to n+1
// attempts, with Delay between them.
type Policy struct {
	Retries int
	Delay   time.Duration
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retriable: Policy.Run returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Run invokes fn until it succeeds, the attempt budget is exhausted, fn
// returns a Permanent error, or ctx is done. The last cause is always
// returned, never swallowed.
func (p Policy) Run(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		last = err
	}
	return last
}
