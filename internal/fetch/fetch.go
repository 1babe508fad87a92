// Package fetch provides the page-acquisition capability consumed by the
// extraction layer: raw HTTP fetches with anti-bot countermeasures, a
// rendered-page fetcher for client-side markup, and an optional
// provider-backed structured fetch. Failures are uniform across modes so
// the strategy chain can treat them identically.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Mode selects how a page is acquired.
type Mode string

const (
	// ModeRaw fetches the server response as-is.
	ModeRaw Mode = "raw"
	// ModeRendered executes JavaScript and returns the settled DOM.
	ModeRendered Mode = "rendered"
	// ModeStructured asks a provider to auto-parse the page into JSON.
	ModeStructured Mode = "structured"
)

// ErrModeUnsupported is returned when no fetcher can serve the requested
// mode. The strategy chain treats it as a normal fall-through signal.
var ErrModeUnsupported = errors.New("fetch: mode unsupported")

// ErrRobotsDisallowed is returned when robots.txt forbids the target URL
// for the configured user-agent token.
var ErrRobotsDisallowed = errors.New("fetch: disallowed by robots.txt")

// Options carries per-request capability hints.
type Options struct {
	Mode Mode
	// BlockResources asks rendered fetchers to skip images/fonts/media.
	BlockResources bool
	// ProxyRegion hints provider-backed fetchers at an exit region.
	ProxyRegion string
	Referer     string
}

// Result is the outcome of one fetch. StatusCode and Blocked describe
// non-fatal conditions; a hard transport failure surfaces as an error from
// Fetch instead.
type Result struct {
	URL        string
	Mode       Mode
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Structured holds provider-parsed JSON in ModeStructured.
	Structured json.RawMessage
	// Blocked is set when an anti-bot challenge page was served instead of
	// content; BlockSource names the vendor.
	Blocked     bool
	BlockSource string
	Duration    time.Duration
	FetchedAt   time.Time
}

// Fetcher acquires one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opt Options) (*Result, error)
}

// Retryable reports whether a fetch outcome is worth one bounded retry:
// anti-bot blocks, the rate-limit/challenge status classes and transient
// transport errors. Context cancellation and policy outcomes (robots
// denial, unsupported mode) never change on retry.
func Retryable(res *Result, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if errors.Is(err, ErrModeUnsupported) || errors.Is(err, ErrRobotsDisallowed) {
			return false
		}
		return true
	}
	if res == nil {
		return false
	}
	if res.Blocked {
		return true
	}
	switch res.StatusCode {
	case http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Capability routes fetch modes across the configured fetchers. A missing
// rendered fetcher degrades to a raw fetch, since server-rendered markup
// often carries enough; a missing structured fetcher yields
// ErrModeUnsupported so the chain falls through.
type Capability struct {
	HTTP       Fetcher
	Rendered   Fetcher
	Structured Fetcher
}

// Fetch implements Fetcher.
func (c *Capability) Fetch(ctx context.Context, url string, opt Options) (*Result, error) {
	switch opt.Mode {
	case ModeStructured:
		if c.Structured == nil {
			return nil, ErrModeUnsupported
		}
		return c.Structured.Fetch(ctx, url, opt)
	case ModeRendered:
		if c.Rendered != nil {
			return c.Rendered.Fetch(ctx, url, opt)
		}
		opt.Mode = ModeRaw
		fallthrough
	default:
		if c.HTTP == nil {
			return nil, ErrModeUnsupported
		}
		return c.HTTP.Fetch(ctx, url, opt)
	}
}
