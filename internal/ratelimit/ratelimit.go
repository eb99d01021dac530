// Package ratelimit keeps one token bucket per caller key.
//
// A [Limiter] is an explicit component: it is created by the application,
// injected where requests are admitted, and swept periodically by [Limiter.Run]
// so that idle keys do not accumulate.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes the allowance of a single key.
type Config struct {
	// Requests admitted per Window. The bucket starts full.
	Requests int
	Window   time.Duration

	// IdleTTL is how long an unused key is kept before Sweep drops it.
	IdleTTL time.Duration

	// SweepInterval is the period of [Limiter.Run].
	SweepInterval time.Duration
}

// DefaultConfig returns 5 requests per minute per key.
func DefaultConfig() Config {
	return Config{
		Requests:      5,
		Window:        time.Minute,
		IdleTTL:       10 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Requests <= 0 {
		c.Requests = d.Requests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a [Limiter]. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow consumes one request for key. It reports whether the request is
// admitted and how many more requests the key may issue right now.
func (l *Limiter) Allow(key string) (allowed bool, remaining int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		every := rate.Every(l.cfg.Window / time.Duration(l.cfg.Requests))
		e = &entry{limiter: rate.NewLimiter(every, l.cfg.Requests)}
		l.entries[key] = e
	}
	e.lastSeen = now

	allowed = e.limiter.AllowN(now, 1)
	remaining = int(math.Floor(e.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops keys unused for longer than the idle TTL and returns how many
// were dropped.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps on every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("ratelimit: swept idle keys", "count", n)
			}
		}
	}
}
