// Package ratelimit paces outbound requests per target host, with optional
// jitter so request timing does not look mechanical.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between requests to the same host.
// Distinct hosts never block each other. Safe for concurrent use.
type Limiter struct {
	interval time.Duration
	jitter   float64 // 0.0 to 1.0

	mu    sync.Mutex
	hosts map[string]time.Time // next allowed send per host
}

// New creates a limiter allowing rps requests per second per host. A jitter
// factor between 0 and 1 randomizes each wait by up to that fraction of the
// interval. rps <= 0 disables pacing.
func New(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter, hosts: make(map[string]time.Time)}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Wait blocks until the host's next slot, or until ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	next := l.hosts[host]
	if next.Before(now) {
		next = now
	}
	wait := next.Sub(now)
	step := l.interval
	if l.jitter > 0 {
		// randomize within ±jitter of the interval
		f := 1 + l.jitter*(rand.Float64()*2-1)
		step = time.Duration(float64(step) * f)
	}
	l.hosts[host] = next.Add(step)
	l.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
