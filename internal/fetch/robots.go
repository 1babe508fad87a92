package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsGate caches per-host robots.txt and answers allow/deny questions.
type robotsGate struct {
	fetcher *HTTPFetcher
	log     *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

func newRobotsGate(f *HTTPFetcher, logger *slog.Logger) *robotsGate {
	return &robotsGate{
		fetcher: f,
		log:     logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

func (g *robotsGate) allowed(ctx context.Context, target *url.URL, agent string) (bool, error) {
	host := target.Scheme + "://" + target.Host

	g.mu.RLock()
	data, ok := g.cache[host]
	g.mu.RUnlock()

	if !ok {
		var err error
		data, err = g.load(ctx, host)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		g.cache[host] = data
		g.mu.Unlock()
	}

	if data == nil {
		return true, nil
	}
	return data.TestAgent(target.Path, agent), nil
}

// load fetches <host>/robots.txt directly through the HTTP client, without
// re-entering the gate. A 404 means no policy; 401/403 is a full deny by
// convention.
func (g *robotsGate) load(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.fetcher.cfg.UAPool.Next())

	resp, err := g.fetcher.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch: robots.txt for %s: %w", host, err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse robots.txt for %s: %w", host, err)
	}
	return data, nil
}
