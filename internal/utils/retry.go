package utils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig contains configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier.
	Multiplier float64
	// RandomizationFactor bounds the jitter applied to each delay.
	RandomizationFactor float64
}

// DefaultRetryConfig returns the retry configuration used for API calls:
// exponential backoff with base 2 between 500ms and 20s, bounded jitter,
// up to 10 attempts.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:         10,
		InitialDelay:        500 * time.Millisecond,
		MaxDelay:            20 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.2,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// IsRetryableFunc determines if an error should be retried.
type IsRetryableFunc func(error) bool

// RetryWithBackoff executes fn, retrying with exponential backoff for as
// long as isRetryable approves of the error and attempts remain. Errors
// isRetryable rejects are returned unchanged and immediately.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, isRetryable IsRetryableFunc, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = nextDelay(delay, config)
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// nextDelay advances the backoff delay, applying bounded random jitter and
// capping the result at MaxDelay.
func nextDelay(current time.Duration, config *RetryConfig) time.Duration {
	next := float64(current) * config.Multiplier
	if config.RandomizationFactor > 0 {
		deviation := (rand.Float64()*2 - 1) * config.RandomizationFactor
		next *= 1 + deviation
	}
	if next > float64(config.MaxDelay) {
		next = float64(config.MaxDelay)
	}
	if next < 0 {
		next = 0
	}
	return time.Duration(math.Round(next))
}
