package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vigiauto/vigiauto/internal/fingerprint"
	"github.com/vigiauto/vigiauto/internal/metrics"
	"github.com/vigiauto/vigiauto/pkg/httpclient"
	"github.com/vigiauto/vigiauto/pkg/proxy"
	"github.com/vigiauto/vigiauto/pkg/ratelimit"
	"github.com/vigiauto/vigiauto/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// HTTPConfig configures the raw HTTP fetcher.
type HTTPConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	CookieJar    bool
	Fingerprint  fingerprint.Profile
	UAPool       *useragent.Pool
	ProxyPool    *proxy.Pool
	Limiter      *ratelimit.Limiter
	// RespectRobots gates every fetch on the host's robots.txt. Robots
	// fetch errors fail open.
	RespectRobots bool
	UserAgent     string // robots.txt user-agent token
}

// HTTPFetcher performs raw page fetches with UA rotation, optional proxy
// rotation and TLS fingerprinting. One fetcher holds one client so cookie
// jars persist across requests.
type HTTPFetcher struct {
	cfg    HTTPConfig
	client *httpclient.Client
	robots *robotsGate
	log    *slog.Logger
}

// NewHTTPFetcher builds a fetcher from cfg.
func NewHTTPFetcher(cfg HTTPConfig, logger *slog.Logger) (*HTTPFetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.New(nil)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}

	// The proxy is injected via request context so one shared transport can
	// rotate proxies per request.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "::1" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("fetch: transport: %w", err)
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		CookieJar:    cfg.CookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: client: %w", err)
	}

	f := &HTTPFetcher{cfg: cfg, client: client, log: logger}
	if cfg.RespectRobots {
		f.robots = newRobotsGate(f, logger)
	}
	return f, nil
}

// Fetch implements Fetcher for ModeRaw. Anti-bot challenges are detected
// and reported on the result, not as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string, opt Options) (*Result, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %q: %w", target, err)
	}
	host := u.Hostname()

	if f.robots != nil {
		allowed, err := f.robots.allowed(ctx, u, f.cfg.UserAgent)
		if err != nil {
			f.log.Warn("robots.txt check failed, proceeding", "host", host, "err", err)
		} else if !allowed {
			return nil, fmt.Errorf("%s: %w", target, ErrRobotsDisallowed)
		}
	}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, host); err != nil {
			return nil, fmt.Errorf("fetch: rate limit wait: %w", err)
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		if activeProxy = f.cfg.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", f.cfg.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")
	if opt.Referer != "" {
		req.Header.Set("Referer", opt.Referer)
	}

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		metrics.RecordFetch(host, string(ModeRaw), 0, true, time.Since(start))
		return nil, fmt.Errorf("fetch: %s: %w", target, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordFetch(host, string(ModeRaw), resp.StatusCode, true, time.Since(start))
		return nil, fmt.Errorf("fetch: read body of %s: %w", target, err)
	}

	res := &Result{
		URL:        target,
		Mode:       ModeRaw,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}
	if analyzeBlock(res) {
		metrics.Blocks.WithLabelValues(host, res.BlockSource).Inc()
		f.log.Debug("anti-bot challenge served", "host", host, "source", res.BlockSource)
	}
	metrics.RecordFetch(host, string(ModeRaw), resp.StatusCode, false, res.Duration)
	return res, nil
}
