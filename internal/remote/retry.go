package remote

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

// RetryPolicy bounds the retry loop around remote calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	logger     logging.Logger
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, logger logging.Logger) *RetryPolicy {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		logger:     logger,
	}
}

// ExecuteWithRetry runs fn, retrying transient failures with exponential
// backoff. Non-retryable errors return immediately. MaxRetries is the total
// attempt budget: a perpetually failing call runs exactly MaxRetries times.
// This is the single retry layer for remote calls; callers must not wrap it
// in another retry loop.
func ExecuteWithRetry[T any](ctx context.Context, policy *RetryPolicy, traceID string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := policy.logger.WithTraceID(traceID)
	start := time.Now()

	attempts := policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("remote operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !utils.IsRetryable(lastErr) {
			logger.Error("remote operation failed (non-retryable)",
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, lastErr
		}

		if attempt < attempts-1 {
			delay := calculateBackoff(policy.BaseDelay, attempt, lastErr)
			logger.Warn("remote operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logger.Error("remote operation failed, attempt budget exhausted",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", attempts),
		logging.F("error", lastErr.Error()),
	)

	return result, lastErr
}

// calculateBackoff computes the retry delay with exponential backoff.
// A Retry-After hint carried on the error takes precedence.
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	if appErr, ok := err.(*utils.AppError); ok {
		if hint, ok := appErr.SyncError.Context["retryAfter"].(string); ok && hint != "" {
			if seconds, parseErr := strconv.Atoi(hint); parseErr == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > maxDelay {
					return maxDelay
				}
				return delay
			}
		}
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter (±25% of delay)
	jitterRange := delay / 4
	jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
	delay = delay + jitter

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}
