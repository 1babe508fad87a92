package scrape

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/vigiauto/vigiauto/internal/dedupe"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/metrics"
	"github.com/vigiauto/vigiauto/internal/score"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// Escalation thresholds and bounds for one site run.
const (
	// SufficientCount stops escalation once a pass leaves this many
	// distinct listings.
	SufficientCount = 10
	// OpportunityCount gates the third pass: it only runs while the
	// first two passes left fewer listings than this.
	OpportunityCount = 5
	// SiteDeadline bounds the whole pass sequence against one site.
	SiteDeadline = 25 * time.Second
	// MaxPerSite caps how many listings one site may contribute.
	MaxPerSite = 100

	defaultPassTimeout = 10 * time.Second
)

// Controller runs the strict/relaxed/opportunity pass sequence against
// one site and assembles its SiteResult.
type Controller struct {
	scraper *Scraper
	logger  *slog.Logger

	// Deadline bounds the whole pass sequence against one site.
	Deadline time.Duration
}

// NewController builds a Controller around a Scraper.
func NewController(s *Scraper, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{scraper: s, logger: logger, Deadline: SiteDeadline}
}

// RunSite executes the pass sequence. Ok is false only on technical
// failure; a clean run that found nothing reports Ok=true with empty
// Items. A cancelled parent context yields Cancelled=true and no items.
func (c *Controller) RunSite(ctx context.Context, site *sites.Site, q listing.Query) listing.SiteResult {
	res := listing.SiteResult{Site: site.Name}

	deadline := c.Deadline
	if deadline <= 0 {
		deadline = SiteDeadline
	}
	siteCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	passes := []listing.Pass{listing.PassStrict, listing.PassRelaxed}
	if site.SupportsOpportunity {
		passes = append(passes, listing.PassOpportunity)
	}

	var collected []listing.Listing
	anyOk := false
	var lastErr error

	for _, pass := range passes {
		if pass == listing.PassRelaxed && len(collected) >= SufficientCount {
			break
		}
		if pass == listing.PassOpportunity && len(collected) >= OpportunityCount {
			break
		}

		passTimeout := site.PassTimeout
		if passTimeout <= 0 {
			passTimeout = defaultPassTimeout
		}
		passCtx, passCancel := context.WithTimeout(siteCtx, passTimeout)
		start := time.Now()
		items, err := c.scraper.FetchAndExtract(passCtx, site, q.ForPass(pass))
		passCancel()

		attempt := listing.Attempt{Pass: pass, Ok: err == nil, Items: len(items), Duration: listing.Millis(time.Since(start))}
		outcome := "ok"
		switch {
		case err == nil:
			anyOk = true
			collected = dedupe.Dedupe(append(collected, items...))
		case ctx.Err() != nil:
			// The caller gave up; report a clean cancellation, not a
			// site failure.
			res.Cancelled = true
			res.Attempts = append(res.Attempts, attempt)
			metrics.PassAttempts.WithLabelValues(site.Name, string(pass), "cancelled").Inc()
			return res
		case errors.Is(err, context.DeadlineExceeded) && siteCtx.Err() != nil:
			// The site deadline aborts the sequence and voids partial
			// results: a site that cannot finish its passes is a technical
			// failure, not a short clean run.
			attempt.Note = "site deadline exceeded"
			res.Attempts = append(res.Attempts, attempt)
			metrics.PassAttempts.WithLabelValues(site.Name, string(pass), "deadline").Inc()
			c.logger.Warn("site deadline exceeded", "site", site.Name, "pass", pass)
			res.Err = attempt.Note
			return res
		default:
			attempt.Note = err.Error()
			lastErr = err
			outcome = "error"
			c.logger.Warn("pass failed", "site", site.Name, "pass", pass, "error", err)
		}
		res.Attempts = append(res.Attempts, attempt)
		metrics.PassAttempts.WithLabelValues(site.Name, string(pass), outcome).Inc()
	}

	res.Ok = anyOk
	if !anyOk && lastErr != nil {
		res.Err = lastErr.Error()
	}
	if !anyOk {
		return res
	}

	// Score against the site-local population, cap and order. The search
	// layer re-scores across sites; this ordering decides what survives
	// the per-site cap.
	for i := range collected {
		collected[i].Score = score.Compute(&collected[i], collected).Score
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Score > collected[j].Score
	})
	if len(collected) > MaxPerSite {
		collected = collected[:MaxPerSite]
	}
	res.Items = collected
	return res
}
