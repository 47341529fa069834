package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return New(ErrCodeFetchFailed, "transient", nil)
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: eventually succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("always fails")
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_AbortsOnNonRetryableCaseError(t *testing.T) {
	// Given: a function returning a non-retryable error
	attempts := 0
	fn := func() error {
		attempts++
		return New(ErrCodeDomainNotAllowed, "domain not in whitelist", nil)
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: no retries are attempted
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, New(ErrCodeDomainNotAllowed, "", nil)))
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", New(ErrCodeLLMUnavailable, "model loading", nil)
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", result)
}
