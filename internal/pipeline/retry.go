package pipeline

import (
	"context"
	"log/slog"

	"subweave/internal/logging"
)

// PostCheck is the outcome of a step's domain validation over its raw output.
type PostCheck struct {
	Valid     bool
	Issues    []string
	Retryable bool
}

// RetryOptions bounds a retry-with-validation cycle.
type RetryOptions struct {
	// MaxRetries is the number of re-generations after the first attempt.
	MaxRetries int
	StepName   string
	Logger     *slog.Logger
}

// WithRetry runs a generate+validate cycle. It calls generate, hands the raw
// output to post along with whether this is the final attempt, and returns
// the post-processed result once the check passes, the failure is not
// retryable, or attempts are exhausted. On the capped final attempt post is
// called with isFinalAttempt=true exactly once so it can apply irreversible
// fallback markers. Errors from generate propagate unchanged; the step's own
// fallback handles them.
func WithRetry[R, T any](
	ctx context.Context,
	opts RetryOptions,
	generate func(context.Context) (R, error),
	post func(raw R, isFinalAttempt bool) (T, PostCheck),
) (T, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var zero T
	for attempt := 0; ; attempt++ {
		raw, err := generate(ctx)
		if err != nil {
			return zero, err
		}

		final := attempt >= maxRetries
		result, check := post(raw, final)
		if check.Valid {
			if attempt > 0 {
				logger.Info("post-check passed after retry",
					logging.String(logging.FieldStage, opts.StepName),
					logging.Int("attempt", attempt+1),
				)
			}
			return result, nil
		}
		if !check.Retryable || final {
			logger.Warn("post-check failed; returning best-effort output",
				logging.String(logging.FieldStage, opts.StepName),
				logging.Int("attempt", attempt+1),
				logging.Bool("retryable", check.Retryable),
				logging.Any("issues", check.Issues),
			)
			return result, nil
		}

		logger.Warn("post-check failed; retrying",
			logging.String(logging.FieldStage, opts.StepName),
			logging.Int("attempt", attempt+1),
			logging.Int("max_retries", maxRetries),
			logging.Any("issues", check.Issues),
		)
	}
}
