package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/vigiauto/vigiauto/internal/metrics"
)

// RenderConfig tunes the headless-browser fetcher.
type RenderConfig struct {
	// Timeout bounds one render end to end.
	Timeout time.Duration
	// WaitStable is the settle delay after load before the DOM is read.
	WaitStable time.Duration
	// Headless is on by default; turn off for local debugging only.
	Headful   bool
	UserAgent string
}

// Renderer fetches pages through a headless Chrome so client-rendered
// listing cards exist in the returned DOM. One Renderer owns one browser
// allocator; Close releases it.
type Renderer struct {
	cfg       RenderConfig
	allocCtx  context.Context
	allocStop context.CancelFunc
	log       *slog.Logger
}

// NewRenderer starts the browser allocator.
func NewRenderer(cfg RenderConfig, logger *slog.Logger) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.WaitStable <= 0 {
		cfg.WaitStable = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, stop := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{cfg: cfg, allocCtx: allocCtx, allocStop: stop, log: logger}
}

// Fetch implements Fetcher for ModeRendered.
func (r *Renderer) Fetch(ctx context.Context, target string, opt Options) (*Result, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %q: %w", target, err)
	}

	start := time.Now()

	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancelTimeout()

	// honor the caller's cancellation as well as our own deadline
	go func() {
		select {
		case <-ctx.Done():
			cancelTimeout()
		case <-tabCtx.Done():
		}
	}()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.Sleep(r.cfg.WaitStable),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		metrics.RecordFetch(u.Hostname(), string(ModeRendered), 0, true, time.Since(start))
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("fetch: render %s: %w", target, err)
	}

	res := &Result{
		URL:        target,
		Mode:       ModeRendered,
		StatusCode: http.StatusOK,
		Body:       []byte(html),
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}
	analyzeBlock(res)
	metrics.RecordFetch(u.Hostname(), string(ModeRendered), res.StatusCode, false, res.Duration)
	return res, nil
}

// Close tears the browser allocator down.
func (r *Renderer) Close() {
	r.allocStop()
}
