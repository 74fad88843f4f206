// Package retry runs exchange calls with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Policy describes how a failing call is retried.
type Policy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	onRetry         func(attempt int, delay time.Duration, err error)
}

// Option configures a Policy.
type Option func(*Policy)

func WithInitialInterval(d time.Duration) Option {
	return func(p *Policy) { p.initialInterval = d }
}

func WithMaxInterval(d time.Duration) Option {
	return func(p *Policy) { p.maxInterval = d }
}

func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.multiplier = m }
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Policy) { p.maxRetries = n }
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(p *Policy) { p.jitter = j }
}

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// New creates a Policy with defaults and optional overrides. Zero or negative
// option values fall back to the defaults.
func New(opts ...Option) *Policy {
	p := &Policy{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.initialInterval <= 0 {
		p.initialInterval = defaultInitialInterval
	}
	if p.maxInterval < p.initialInterval {
		p.maxInterval = p.initialInterval
	}
	if p.multiplier < 1 {
		p.multiplier = defaultMultiplier
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn until it succeeds, returns a permanent error, the retries are
// exhausted or ctx is done.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	interval := p.initialInterval

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.jittered(interval)
			if p.onRetry != nil {
				p.onRetry(attempt, delay, err)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			interval = min(time.Duration(float64(interval)*p.multiplier), p.maxInterval)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
	}

	return err
}

func (p *Policy) jittered(interval time.Duration) time.Duration {
	j := (rand.Float64()*2 - 1) * p.jitter * float64(interval)
	return max(time.Duration(float64(interval)+j), 0)
}

// DoWithData executes fn with retries and returns its value.
func DoWithData[T any](p *Policy, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
