package payment

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds how long a gateway timeout or error is retried before
// the payment is declared FAILED.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 2 * time.Second,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// backoff returns the wait before the given retry (1-based): exponential with
// up to 50% jitter, capped at MaxBackoff.
func (p RetryPolicy) backoff(retry int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	d := p.BaseBackoff * time.Duration(1<<(retry-1))
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
