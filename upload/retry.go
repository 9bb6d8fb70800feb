package upload

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for RetryPolicy.
const (
	DefaultInitialInterval = time.Second
	DefaultMultiplier      = 2.0
	DefaultMaxInterval     = 10 * time.Second
)

// RetryPolicy controls status polling. Waits grow from InitialInterval by
// Multiplier up to MaxInterval, without jitter. MaxRetries of zero polls
// until the upload reaches a terminal status.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy waits 1s, 2s, 4s, 8s, then 10s between polls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     DefaultMaxInterval,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return p
}

// BackOff returns a fresh backoff bound to ctx.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var out backoff.BackOff = b
	if p.MaxRetries > 0 {
		out = backoff.WithMaxRetries(out, p.MaxRetries)
	}
	return backoff.WithContext(out, ctx)
}
