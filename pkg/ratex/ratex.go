package ratex

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/logx"
)

// Limiter paces outbound provider calls. It enforces a minimum interval
// between calls and arms a jittered cooldown window when a call fails
// with a throttling or overload error. One Limiter instance is shared by
// every provider call in the process; it is injected, never global.
type Limiter struct {
	mu            sync.Mutex
	interval      time.Duration
	cooldownMin   time.Duration
	cooldownMax   time.Duration
	lastCall      time.Time
	cooldownUntil time.Time
	rng           *rand.Rand
}

// Option configures a Limiter
type Option func(*Limiter)

// WithInterval sets the minimum spacing between calls
func WithInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.interval = d
	}
}

// WithCooldown sets the jittered cooldown window bounds
func WithCooldown(min, max time.Duration) Option {
	return func(l *Limiter) {
		l.cooldownMin = min
		l.cooldownMax = max
	}
}

// New creates a Limiter with a 750ms interval and a 45-90s cooldown window
func New(opts ...Option) *Limiter {
	l := &Limiter{
		interval:    750 * time.Millisecond,
		cooldownMin: 45 * time.Second,
		cooldownMax: 90 * time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cooldownMax < l.cooldownMin {
		l.cooldownMax = l.cooldownMin
	}
	return l
}

// Wait blocks until the next call is allowed or the context is done.
// It accounts for both the inter-call interval and any active cooldown.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()

		next := l.lastCall.Add(l.interval)
		if l.cooldownUntil.After(next) {
			next = l.cooldownUntil
		}

		if !next.After(now) {
			l.lastCall = now
			l.mu.Unlock()
			return nil
		}

		delay := next.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReportFailure inspects the error and arms the cooldown when the
// provider signalled throttling or overload.
func (l *Limiter) ReportFailure(err error) {
	if err == nil {
		return
	}

	t := errx.TypeOf(err)
	if t != errx.TypeRateLimit && t != errx.TypeUnavailable {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.cooldownMin
	if span := l.cooldownMax - l.cooldownMin; span > 0 {
		window += time.Duration(l.rng.Int63n(int64(span)))
	}
	until := time.Now().Add(window)
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
		logx.WithFields(logx.Fields{
			"cooldown": window.String(),
			"type":     t.String(),
		}).Warn("provider throttled, pausing outbound calls")
	}
}

// ReportSuccess clears any active cooldown
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cooldownUntil.IsZero() && l.cooldownUntil.After(time.Now()) {
		l.cooldownUntil = time.Time{}
	}
}

// CoolingDown reports whether a cooldown window is active
func (l *Limiter) CoolingDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldownUntil.After(time.Now())
}
