// Package useragent rotates User-Agent strings across requests so that a
// scrape session does not present a single static identity.
package useragent

import (
	"math/rand"
	"sync/atomic"
)

// defaults covers current desktop Chrome, Firefox, Safari and Edge.
var defaults = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
}

// Pool hands out User-Agent strings round-robin or at random. Safe for
// concurrent use.
type Pool struct {
	agents []string
	next   atomic.Uint64
}

// New builds a pool from the given agents, falling back to the built-in set
// when none are provided. The slice is copied.
func New(agents []string) *Pool {
	if len(agents) == 0 {
		agents = defaults
	}
	cp := make([]string, len(agents))
	copy(cp, agents)
	return &Pool{agents: cp}
}

// Next returns the next agent in round-robin order.
func (p *Pool) Next() string {
	if len(p.agents) == 0 {
		return ""
	}
	n := p.next.Add(1) - 1
	return p.agents[n%uint64(len(p.agents))]
}

// Random returns a uniformly chosen agent.
func (p *Pool) Random() string {
	if len(p.agents) == 0 {
		return ""
	}
	return p.agents[rand.Intn(len(p.agents))]
}

// Size reports how many agents the pool rotates over.
func (p *Pool) Size() int {
	return len(p.agents)
}
