package service

import (
	"context"
	"time"
)

// Sleeper abstracts the backoff wait so retry schedules are unit-testable
// without real time.
type Sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is the bounded retry schedule for guaranteed-attempt sends:
// MaxAttempts tries total, exponential delay between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before retrying attempt i (0-indexed):
// BaseDelay * 2^i.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// DefaultRetryPolicy matches the wire-level contract: 3 attempts with
// 0.2s, 0.4s, 0.8s delays.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
}
