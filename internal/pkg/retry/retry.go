// Package retry wraps fallible collaborator calls with a bounded,
// fixed-delay retry policy.
package retry

import (
	"context"
	"time"

	"hypertrader/internal/logger"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// Do runs fn up to attempts times, sleeping delay between attempts.
// The last error is returned once every attempt is exhausted. A canceled
// context aborts immediately with ctx.Err().
func Do(ctx context.Context, label string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		logger.Warnf("[retry] %s 第%d次失败: %v，%s 后重试", label, i+1, lastErr, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Do2 is Do for calls that also return a value.
func Do2[T any](ctx context.Context, label string, attempts int, delay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, label, attempts, delay, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
