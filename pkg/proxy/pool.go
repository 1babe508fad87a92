// Package proxy manages a rotating pool of outbound proxies with failure
// tracking: a proxy that keeps failing is benched for a cooldown period
// instead of poisoning every subsequent request.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type entry struct {
	url         *url.URL
	failures    int
	benchedTill time.Time
}

// Pool rotates proxies round-robin, skipping benched ones. Safe for
// concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	idx         int
	maxFailures int
	cooldown    time.Duration
}

// Config tunes failure handling.
type Config struct {
	// MaxFailures benches a proxy once reached.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config fields get defaults
// (3 failures, 5 minute cooldown).
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown}
}

// Add registers a proxy URL.
func (p *Pool) Add(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("proxy: parse %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("proxy: %q is not an absolute URL", raw)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &entry{url: u})
	return nil
}

// LoadFile reads one proxy URL per line. Blank lines and '#' comments are
// skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.Add(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Next returns the next usable proxy, or nil when the pool is empty or
// everything is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(p.entries); i++ {
		e := p.entries[p.idx%len(p.entries)]
		p.idx++
		if e.benchedTill.After(now) {
			continue
		}
		u := *e.url // copy, callers must not reach pool state
		return &u
	}
	return nil
}

// MarkFailure records a failed request through the proxy; hitting the
// failure limit benches it for the cooldown.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(u)
	if e == nil {
		return ErrUnknownProxy
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.benchedTill = time.Now().Add(p.cooldown)
		e.failures = 0
	}
	return nil
}

// MarkSuccess resets the failure count of a proxy.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(u)
	if e == nil {
		return ErrUnknownProxy
	}
	e.failures = 0
	return nil
}

// Len reports the number of registered proxies, benched included.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) find(u *url.URL) *entry {
	for _, e := range p.entries {
		if e.url.String() == u.String() {
			return e
		}
	}
	return nil
}
