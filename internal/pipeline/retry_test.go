package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	generations := 0
	result, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 2, StepName: "refine"},
		func(context.Context) (string, error) {
			generations++
			return "raw", nil
		},
		func(raw string, final bool) (string, PostCheck) {
			assert.False(t, final)
			return raw + "-checked", PostCheck{Valid: true}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "raw-checked", result)
	assert.Equal(t, 1, generations)
}

func TestWithRetryRetriesUntilValid(t *testing.T) {
	generations := 0
	result, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 3, StepName: "refine"},
		func(context.Context) (int, error) {
			generations++
			return generations, nil
		},
		func(raw int, _ bool) (int, PostCheck) {
			if raw < 3 {
				return raw, PostCheck{Retryable: true, Issues: []string{"too small"}}
			}
			return raw, PostCheck{Valid: true}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, result)
	assert.Equal(t, 3, generations)
}

func TestWithRetryFinalAttemptFlaggedExactlyOnce(t *testing.T) {
	finalCalls := 0
	generations := 0
	result, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 2, StepName: "refine"},
		func(context.Context) (string, error) {
			generations++
			return "bad", nil
		},
		func(raw string, final bool) (string, PostCheck) {
			if final {
				finalCalls++
				return raw + "-marked", PostCheck{Retryable: true, Issues: []string{"still bad"}}
			}
			return raw, PostCheck{Retryable: true, Issues: []string{"still bad"}}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "bad-marked", result)
	assert.Equal(t, 1, finalCalls)
	assert.Equal(t, 3, generations)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	generations := 0
	result, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 5, StepName: "translate"},
		func(context.Context) (string, error) {
			generations++
			return "partial", nil
		},
		func(raw string, final bool) (string, PostCheck) {
			assert.False(t, final)
			return raw, PostCheck{Retryable: false, Issues: []string{"structural problem"}}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "partial", result)
	assert.Equal(t, 1, generations)
}

func TestWithRetryPropagatesGenerateError(t *testing.T) {
	boom := errors.New("provider down")
	_, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 2, StepName: "refine"},
		func(context.Context) (string, error) {
			return "", boom
		},
		func(string, bool) (string, PostCheck) {
			t.Fatal("post must not run when generate fails")
			return "", PostCheck{}
		},
	)
	assert.ErrorIs(t, err, boom)
}

func TestWithRetryZeroRetriesIsSingleFinalAttempt(t *testing.T) {
	finalSeen := false
	_, err := WithRetry(context.Background(), RetryOptions{MaxRetries: 0, StepName: "refine"},
		func(context.Context) (string, error) { return "x", nil },
		func(raw string, final bool) (string, PostCheck) {
			finalSeen = final
			return raw, PostCheck{Retryable: true}
		},
	)
	require.NoError(t, err)
	assert.True(t, finalSeen)
}
