// Package retry runs provider calls with bounded, jittered exponential
// backoff.
//
// Only errors classified as transient are retried. A server-provided
// retry-after hint raises the computed delay but never lowers it. The sleep
// honours context cancellation, so an abandoned request stops retrying.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/greffier/pkg/llmerr"
)

// Policy holds the backoff parameters.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Jitter is the relative spread around the nominal delay; 0.25 means
	// ±25%.
	Jitter float64
}

// DefaultPolicy is used when no policy is supplied.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
	return p
}

// Delay returns the wait before the retry that follows attempt index i
// (0-based). rnd must return a value in [0,1). The result lies in
// [nominal·(1-jitter), min(nominal·(1+jitter), MaxDelay)] with
// nominal = BaseDelay·Multiplier^i, and is then raised to hint.
func (p Policy) Delay(i int, hint time.Duration, rnd func() float64) time.Duration {
	p = p.withDefaults()
	nominal := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(i))
	factor := 1 - p.Jitter + 2*p.Jitter*rnd()
	d := time.Duration(nominal * factor)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if hint > d {
		d = hint
	}
	return d
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Retryable classifies err. Typed errors answer through their own flag;
// anything else is judged by HTTP status, then by message. Context
// cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if e, ok := llmerr.As(err); ok {
		return e.Retryable
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return llmerr.TransientStatus("", sc.HTTPStatus())
	}
	if status := llmerr.StatusFromMessage(err.Error()); status != 0 {
		return llmerr.TransientStatus("", status)
	}
	return llmerr.TransientMessage(err.Error())
}

// RetryAfter extracts a server-provided minimum wait from err, or 0.
func RetryAfter(err error) time.Duration {
	if e, ok := llmerr.As(err); ok {
		return e.RetryAfter
	}
	return 0
}

type options struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	rnd    func() float64
	notify func(attempt int, err error, delay time.Duration)
}

// Option customises a [Do] call.
type Option func(*options)

// WithPolicy replaces the whole policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMaxAttempts overrides only the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.policy.MaxAttempts = n }
}

// WithSleep replaces the context-aware sleep. Tests use it to record delays
// without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithRand replaces the jitter source.
func WithRand(fn func() float64) Option {
	return func(o *options) { o.rnd = fn }
}

// WithNotify registers a hook called before each backoff sleep with the
// 1-based attempt that just failed.
func WithNotify(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged.
func Do[T any](ctx context.Context, op string, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		policy: DefaultPolicy(),
		sleep:  Sleep,
		rnd:    rand.Float64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	policy := o.policy.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("retry: succeeded after retries", "op", op, "attempts", attempt)
			}
			return v, nil
		}

		if attempt >= policy.MaxAttempts || !Retryable(err) || ctx.Err() != nil {
			return zero, err
		}

		delay := policy.Delay(attempt-1, RetryAfter(err), o.rnd)
		slog.Warn("retry: transient failure, backing off",
			"op", op,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"err", err)
		if o.notify != nil {
			o.notify(attempt, err, delay)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return zero, err
		}
	}
}
