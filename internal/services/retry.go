package services

import (
	"context"
	"time"

	apperrors "storefront/pkg/errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy retries rate-limited calls with exponential backoff. Any other
// error is returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64 // randomization factor, 0 disables

	// Timer drives the waits between attempts; nil uses a real timer.
	Timer  backoff.Timer
	Logger *zap.Logger
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs fn under p. The op name is only used for logging.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var result T
	attempt := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			if apperrors.IsRateLimited(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = v
		return nil
	}, p.backOff(ctx), func(err error, next time.Duration) {
		logger.Warn("rate limited, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err))
	}, p.Timer)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
