package pyrus

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/pyrusbridge/tgbridge/internal/resilience"
)

// Default retry settings for every outbound Pyrus call.
const (
	DefaultRetryAttempts     = 3
	DefaultRetryInitialDelay = 4 * time.Second
	DefaultRetryMaxDelay     = 10 * time.Second
)

// RetryPolicy is a bounded exponential backoff. The delay starts at InitialDelay,
// doubles on every attempt and never exceeds MaxDelay.
type RetryPolicy struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a 4s..10s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     DefaultRetryAttempts,
		InitialDelay: DefaultRetryInitialDelay,
		MaxDelay:     DefaultRetryMaxDelay,
	}
}

// retryable decides whether a failed attempt may be repeated. 403 is a permanent
// denial and an open circuit fails fast; a cancelled caller stops the loop as well.
func retryable(ctx context.Context) func(error) bool {
	return func(err error) bool {
		if IsForbidden(err) || resilience.IsOpen(err) {
			return false
		}
		return ctx.Err() == nil
	}
}

func (p RetryPolicy) do(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.InitialDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable(ctx)),
		retry.OnRetry(func(n uint, err error) {
			log.WarnContext(ctx, "Retrying Pyrus call",
				"op", op,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err)
		}),
	)
}
