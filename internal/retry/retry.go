// Package retry provides bounded exponential retries and the fixed backoff used by consumer loops.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
)

// Errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// DoWithRetry executes fn with retry logic according to the provided configuration.
// It returns ErrMaxRetriesExceeded wrapped with the last error if all retries fail.
func DoWithRetry(ctx context.Context, cfg *config.RetryConfig, fn func() error) error {
	var err error

	for i := range cfg.MaxAttempts + 1 {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil {
			return nil
		}

		if i == cfg.MaxAttempts {
			break
		}

		if sleepErr := Sleep(ctx, calculateBackoff(cfg, i)); sleepErr != nil {
			return sleepErr
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, err)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateBackoff computes the backoff delay for a given attempt
func calculateBackoff(cfg *config.RetryConfig, attempt int) time.Duration {
	// Exponential backoff: baseDelay * (multiplier ^ attempt)
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt)))

	// Cap at MaxDelay
	return min(delay, cfg.MaxDelay)
}
