// Package search is the orchestrator: it fans one query out across the
// configured marketplaces, reconciles the per-site results into a single
// deduplicated, flagged, scored and deterministically ordered list.
package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vigiauto/vigiauto/internal/dedupe"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/metrics"
	"github.com/vigiauto/vigiauto/internal/redflag"
	"github.com/vigiauto/vigiauto/internal/scrape"
	"github.com/vigiauto/vigiauto/internal/score"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// MaxConcurrentSites bounds how many marketplaces are scraped at once.
const MaxConcurrentSites = 3

// Engine runs searches.
type Engine struct {
	controller *scrape.Controller
	sites      []*sites.Site
	detectors  []redflag.Detector
	logger     *slog.Logger
}

// New builds an Engine over the given site profiles. A nil site list
// selects the defaults.
func New(c *scrape.Controller, ss []*sites.Site, logger *slog.Logger) *Engine {
	if ss == nil {
		ss = sites.Defaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		controller: c,
		sites:      ss,
		detectors:  redflag.DefaultDetectors(),
		logger:     logger,
	}
}

// Search runs the query against every non-excluded site concurrently and
// reconciles the outcome. It always returns a Result, even when every
// site failed; the only error is an invalid query.
func (e *Engine) Search(ctx context.Context, q listing.Query) (*listing.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var selected []*sites.Site
	for _, s := range e.sites {
		if q.Excludes(s.Name) {
			continue
		}
		selected = append(selected, s)
	}

	// Slot-per-site writes keep the join free of channels and locks.
	results := make([]listing.SiteResult, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentSites)
	for i, site := range selected {
		g.Go(func() error {
			results[i] = e.controller.RunSite(gctx, site, q)
			return nil
		})
	}
	// Workers never return errors; site outcomes travel in results.
	_ = g.Wait()

	res := &listing.Result{Sites: results}
	var merged []listing.Listing
	for _, sr := range results {
		if sr.Ok {
			res.Stats.SitesScraped++
			merged = append(merged, sr.Items...)
		} else if !sr.Cancelled {
			e.logger.Warn("site failed", "site", sr.Site, "error", sr.Err)
		}
	}

	merged = dedupe.Dedupe(merged)
	for i := range merged {
		l := &merged[i]
		market := score.Comparables(l, merged)
		l.RedFlags = append(l.RedFlags, redflag.Run(l, market, e.detectors)...)
		for _, f := range l.RedFlags {
			metrics.RedFlags.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
		}
		l.Score = score.Compute(l, merged).Score
	}

	// Ordering must be reproducible across runs with equal inputs: score
	// first, listing id as the stable tiebreak.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})

	res.Listings = merged
	res.Stats.TotalItems = len(merged)
	res.Stats.Duration = listing.Millis(time.Since(start))

	e.logger.Info("search complete",
		"brand", q.Brand, "model", q.Model,
		"items", res.Stats.TotalItems,
		"sites_ok", res.Stats.SitesScraped,
		"duration", res.Stats.Duration)
	return res, nil
}
