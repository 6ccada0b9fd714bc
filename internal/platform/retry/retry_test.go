package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Millisecond,
}

func never(error) bool { return false }

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, never, func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, never, func() (struct{}, error) {
		calls++
		if calls < 3 {
			return struct{}{}, errors.New("transient")
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, never, func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("still broken")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_PermanentErrorAborts(t *testing.T) {
	calls := 0
	sentinel := errors.New("permanent")
	_, err := retry.Do(context.Background(), fastPolicy, func(err error) bool {
		return errors.Is(err, sentinel)
	}, func() (struct{}, error) {
		calls++
		return struct{}{}, sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var pe *retry.PermanentError
	assert.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, sentinel)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Do(ctx, retry.Policy{MaxAttempts: 5, InitialBackoff: time.Hour}, never, func() (struct{}, error) {
		return struct{}{}, errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			attempts = append(attempts, attempt)
		},
	}
	_, _ = retry.Do(context.Background(), p, never, func() (struct{}, error) {
		return struct{}{}, errors.New("transient")
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVoid(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, never, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
