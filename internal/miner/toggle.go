package miner

import (
	"context"
	"errors"
	"fmt"
)

// Toggle sets a remote flag to a target value for the duration of a caller
// block and restores the original afterwards. Read and Write are the two
// remote operations; the pair is not atomic across failures.
type Toggle[T comparable] struct {
	Read  func(ctx context.Context) (T, error)
	Write func(ctx context.Context, value T) error
}

// With reads the current value, writes target if it differs, runs fn with
// the original value, and writes the original back on every exit path —
// including fn failure and context cancellation. When the flag already holds
// target no write is issued at all. A restore failure is reported alongside
// fn's error, never hidden.
func (t Toggle[T]) With(ctx context.Context, target T, fn func(original T) error) error {
	original, err := t.Read(ctx)
	if err != nil {
		return err
	}

	changed := original != target
	if changed {
		if err := t.Write(ctx, target); err != nil {
			return err
		}
	}

	fnErr := fn(original)

	if changed {
		// Restore must run even after cancellation.
		if restoreErr := t.Write(context.WithoutCancel(ctx), original); restoreErr != nil {
			return errors.Join(fnErr, fmt.Errorf("restore failed: %w", restoreErr))
		}
	}
	return fnErr
}
