// Package httpclient wraps net/http with the redirect, cookie and transport
// configuration the scraping layer needs.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Config tunes the client. Zero values get sensible defaults.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps redirect chains; negative disables following
	// redirects entirely.
	MaxRedirects int
	// CookieJar enables a per-client jar so session cookies survive across
	// requests, which several marketplaces require before serving results.
	CookieJar bool
	// Transport overrides the default transport, e.g. for TLS
	// fingerprinting or proxy injection.
	Transport http.RoundTripper
}

// Client is a thin wrapper over http.Client.
type Client struct {
	*http.Client
}

// New builds a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects < 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if cfg.MaxRedirects > 0 {
		limit := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("httpclient: stopped after %d redirects", limit)
			}
			return nil
		}
	}

	if cfg.CookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c}, nil
}

// Do executes req bound to ctx.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}
	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
