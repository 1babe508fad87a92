// Package scrape runs the per-site acquisition loop: building pass
// queries, fetching result pages, driving the extraction chain and
// escalating to wider passes while the yield stays thin.
package scrape

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vigiauto/vigiauto/internal/extract"
	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/metrics"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// Scraper fetches one search page and turns it into listings. It keeps a
// per-run page cache so pass escalation never refetches an identical URL.
type Scraper struct {
	fetcher fetch.Fetcher
	chain   *extract.Chain
	logger  *slog.Logger

	// RetryBackoff is slept before the single retry of a retryable fetch.
	RetryBackoff time.Duration
	// TryStructured attempts a provider auto-parse before the page fetch.
	TryStructured bool

	mu    sync.Mutex
	cache map[string]*fetch.Result
}

// NewScraper wires the fetcher and extraction chain together.
func NewScraper(f fetch.Fetcher, chain *extract.Chain, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		fetcher:      f,
		chain:        chain,
		logger:       logger,
		RetryBackoff: 750 * time.Millisecond,
		cache:        make(map[string]*fetch.Result),
	}
}

// FetchAndExtract runs one pass-derived query against a site and returns
// the normalized listings over the query's price ceiling filter.
func (s *Scraper) FetchAndExtract(ctx context.Context, site *sites.Site, q listing.Query) ([]listing.Listing, error) {
	pageURL := site.BuildURL(q)

	var page *fetch.Result
	if s.TryStructured {
		res, err := s.fetchOnce(ctx, pageURL, fetch.Options{Mode: fetch.ModeStructured})
		switch {
		case err == nil:
			page = res
		case errors.Is(err, fetch.ErrModeUnsupported):
			// fall through to a page fetch
		default:
			s.logger.Debug("structured fetch failed", "site", site.Name, "error", err)
		}
	}
	if page == nil {
		mode := fetch.ModeRaw
		if site.NeedsRender {
			mode = fetch.ModeRendered
		}
		res, err := s.fetchRetrying(ctx, pageURL, fetch.Options{Mode: mode, BlockResources: true})
		if err != nil {
			return nil, err
		}
		page = res
	}

	frags, strategy, err := s.chain.Run(ctx, extract.Input{Site: site, Query: q, Page: page})
	if err != nil {
		return nil, err
	}
	items := extract.Normalize(frags, site)
	items = filterBudget(items, q)

	if len(items) > 0 {
		metrics.ListingsExtracted.WithLabelValues(site.Name, strategy).Add(float64(len(items)))
	}
	return items, nil
}

// fetchRetrying fetches with one bounded retry on retryable outcomes
// (anti-bot block, 403/422/429, transient transport errors).
func (s *Scraper) fetchRetrying(ctx context.Context, url string, opt fetch.Options) (*fetch.Result, error) {
	res, err := s.fetchOnce(ctx, url, opt)
	if !fetch.Retryable(res, err) {
		return res, err
	}
	s.logger.Debug("retrying fetch", "url", url, "error", err)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.RetryBackoff):
	}
	s.mu.Lock()
	delete(s.cache, cacheKey(url, opt.Mode))
	s.mu.Unlock()
	return s.fetchOnce(ctx, url, opt)
}

func (s *Scraper) fetchOnce(ctx context.Context, url string, opt fetch.Options) (*fetch.Result, error) {
	key := cacheKey(url, opt.Mode)
	s.mu.Lock()
	res, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return res, nil
	}
	res, err := s.fetcher.Fetch(ctx, url, opt)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	s.cache[key] = res
	s.mu.Unlock()
	return res, nil
}

func cacheKey(url string, mode fetch.Mode) string {
	return string(mode) + "|" + url
}

// filterBudget drops listings priced over the query ceiling. Unpriced
// listings survive: a missing price is a data-quality problem, not a
// budget violation.
func filterBudget(items []listing.Listing, q listing.Query) []listing.Listing {
	if q.MaxPrice <= 0 {
		return items
	}
	out := items[:0]
	for _, l := range items {
		if l.Price != nil && *l.Price > q.MaxPrice {
			continue
		}
		out = append(out, l)
	}
	return out
}
