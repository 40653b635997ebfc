package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
	// maxAttempts caps attempts per request, including the first.
	maxAttempts = 3
)

// newBackOff returns the jittered exponential policy between attempts.
func newBackOff(base, limit time.Duration) *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         limit,
	}
}

// withRetry runs fn until it succeeds, fails terminally, or MaxAttempts is
// reached. Cancelling ctx stops both the call and the wait between attempts.
func (c *Client) withRetry(ctx context.Context, endpoint string, fn func(context.Context) error) (int, error) {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := fn(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case !IsTransient(err):
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff(c.cfg.BaseBackoff, c.cfg.MaxBackoff)),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", attempts).
				Dur("backoff", wait).
				Msg("Transient aggregator error, retrying")
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return attempts, err
}
