package miner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlag struct {
	value    bool
	readErr  error
	writeErr error
	writes   []bool
}

func (f *fakeFlag) toggle() Toggle[bool] {
	return Toggle[bool]{
		Read: func(context.Context) (bool, error) {
			return f.value, f.readErr
		},
		Write: func(_ context.Context, v bool) error {
			if f.writeErr != nil {
				return f.writeErr
			}
			f.writes = append(f.writes, v)
			f.value = v
			return nil
		},
	}
}

func TestToggleSetsAndRestores(t *testing.T) {
	flag := &fakeFlag{value: true}

	var seen bool
	err := flag.toggle().With(context.Background(), false, func(original bool) error {
		seen = original
		return nil
	})
	require.NoError(t, err)
	assert.True(t, seen, "the block receives the original value")
	assert.Equal(t, []bool{false, true}, flag.writes)
	assert.True(t, flag.value, "the original value is restored")
}

func TestToggleSkipsWriteWhenAlreadyEqual(t *testing.T) {
	flag := &fakeFlag{value: false}

	var seen bool
	err := flag.toggle().With(context.Background(), false, func(original bool) error {
		seen = original
		return nil
	})
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Empty(t, flag.writes, "no write when the flag already holds the target")
}

func TestToggleRestoresAfterBlockFailure(t *testing.T) {
	flag := &fakeFlag{value: true}
	boom := errors.New("boom")

	err := flag.toggle().With(context.Background(), false, func(bool) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []bool{false, true}, flag.writes, "restore runs on the failure path too")
}

func TestToggleRestoresAfterCancellation(t *testing.T) {
	flag := &fakeFlag{value: true}
	ctx, cancel := context.WithCancel(context.Background())

	err := flag.toggle().With(ctx, false, func(bool) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{false, true}, flag.writes)
}

func TestToggleReportsRestoreFailure(t *testing.T) {
	flag := &fakeFlag{value: true}
	boom := errors.New("boom")

	tg := flag.toggle()
	write := tg.Write
	calls := 0
	tg.Write = func(ctx context.Context, v bool) error {
		calls++
		if calls == 2 {
			return errors.New("restore refused")
		}
		return write(ctx, v)
	}

	err := tg.With(context.Background(), false, func(bool) error { return boom })
	require.ErrorIs(t, err, boom, "the block failure is not hidden")
	assert.ErrorContains(t, err, "restore failed")
}

func TestToggleReadFailureShortCircuits(t *testing.T) {
	flag := &fakeFlag{readErr: errors.New("unreachable")}
	err := flag.toggle().With(context.Background(), false, func(bool) error {
		t.Fatal("block must not run when the read fails")
		return nil
	})
	require.Error(t, err)
	assert.Empty(t, flag.writes)
}
