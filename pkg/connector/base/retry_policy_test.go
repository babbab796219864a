package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discordwell/ticketbridge/pkg/errors"
)

func fastPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestExecuteWithCondition_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := fastPolicy(4).ExecuteWithCondition(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrorTypeConnection, "connection reset")
		}
		return nil
	}, errors.IsRetryable)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithCondition_NonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	authErr := errors.New(errors.ErrorTypeAuthentication, "bad credentials")
	err := fastPolicy(4).ExecuteWithCondition(context.Background(), func() error {
		attempts++
		return authErr
	}, errors.IsRetryable)

	// the original error comes back untouched so its type survives
	assert.Same(t, authErr, err)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithCondition_ExhaustsBudget(t *testing.T) {
	attempts := 0
	err := fastPolicy(3).ExecuteWithCondition(context.Background(), func() error {
		attempts++
		return errors.New(errors.ErrorTypeTimeout, "deadline exceeded")
	}, errors.IsRetryable)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestExecuteWithCondition_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour, Multiplier: 2.0}
	err := policy.ExecuteWithCondition(ctx, func() error {
		cancel()
		return errors.New(errors.ErrorTypeConnection, "connection reset")
	}, errors.IsRetryable)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
