package scrape

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigiauto/vigiauto/internal/extract"
	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/sites"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	respond func(url string, opt fetch.Options) (*fetch.Result, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, url string, opt fetch.Options) (*fetch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, url)
	s.mu.Unlock()
	return s.respond(url, opt)
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testSite() *sites.Site {
	return &sites.Site{
		Name:                "testsite",
		BaseURL:             "https://cars.example.fr",
		SupportsOpportunity: true,
		PassTimeout:         2 * time.Second,
		CardSelector:        "div.card",
		FieldSelectors: map[string]string{
			"title": "h3",
			"price": "span.price",
			"link":  "a",
		},
		LinkPattern: regexp.MustCompile(`/annonce/`),
		BuildURL: func(q listing.Query) string {
			return fmt.Sprintf("https://cars.example.fr/search?max=%d&model=%s", q.MaxPrice, q.Model)
		},
	}
}

// cardsHTML renders n distinct result cards, each priced at price euros.
func cardsHTML(prefix string, n, price int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="card"><a href="/annonce/%s-%d"><h3>Peugeot 308 %s %d</h3></a><span class="price">%d €</span></div>`,
			prefix, i, prefix, i, price)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func htmlResult(body string) *fetch.Result {
	return &fetch.Result{StatusCode: 200, Body: []byte(body)}
}

func newTestScraper(f fetch.Fetcher) *Scraper {
	s := NewScraper(f, extract.NewChain(nil, nil), nil)
	s.RetryBackoff = time.Millisecond
	return s
}

func TestRunSiteStopsAfterSufficientStrictPass(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult(cardsHTML("strict", 12, 9000)), nil
	}}
	c := NewController(newTestScraper(f), nil)

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 10000})
	if !res.Ok || res.Cancelled {
		t.Fatalf("res = %+v", res)
	}
	if f.callCount() != 1 {
		t.Fatalf("fetches = %d, want 1 (strict pass was sufficient)", f.callCount())
	}
	if len(res.Items) != 12 {
		t.Errorf("items = %d", len(res.Items))
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Pass != listing.PassStrict {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestRunSiteEscalatesToRelaxed(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		if strings.Contains(url, "max=10000") {
			return htmlResult(cardsHTML("strict", 7, 9000)), nil
		}
		return htmlResult(cardsHTML("relaxed", 6, 9500)), nil
	}}
	c := NewController(newTestScraper(f), nil)

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 10000})
	if !res.Ok {
		t.Fatalf("res = %+v", res)
	}
	if f.callCount() != 2 {
		t.Fatalf("fetches = %d, want 2 (strict then relaxed, no opportunity)", f.callCount())
	}
	if len(res.Items) != 13 {
		t.Errorf("items = %d, want 13 distinct", len(res.Items))
	}
}

func TestRunSiteRunsOpportunityWhenThin(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		switch {
		case strings.Contains(url, "max=10000"):
			return htmlResult(cardsHTML("strict", 2, 9000)), nil
		case strings.Contains(url, "max=11000"):
			return htmlResult(cardsHTML("relaxed", 1, 9500)), nil
		default:
			return htmlResult(cardsHTML("opp", 3, 9900)), nil
		}
	}}
	c := NewController(newTestScraper(f), nil)

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 10000})
	if f.callCount() != 3 {
		t.Fatalf("fetches = %d, want 3", f.callCount())
	}
	if len(res.Attempts) != 3 || res.Attempts[2].Pass != listing.PassOpportunity {
		t.Errorf("attempts = %+v", res.Attempts)
	}
	if len(res.Items) != 6 {
		t.Errorf("items = %d", len(res.Items))
	}
}

func TestRunSiteSkipsOpportunityWhenUnsupported(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult(cardsHTML("x", 1, 9000)), nil
	}}
	site := testSite()
	site.SupportsOpportunity = false
	c := NewController(newTestScraper(f), nil)

	c.RunSite(context.Background(), site, listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if f.callCount() != 2 {
		t.Fatalf("fetches = %d, want 2 (no opportunity pass)", f.callCount())
	}
}

func TestRunSiteEmptySuccessIsOk(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult("<html><body>aucun résultat</body></html>"), nil
	}}
	c := NewController(newTestScraper(f), nil)

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if !res.Ok {
		t.Fatal("clean empty run must be Ok")
	}
	if len(res.Items) != 0 || res.Err != "" {
		t.Errorf("res = %+v", res)
	}
}

func TestRunSiteTechnicalFailure(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return nil, errors.New("connection refused")
	}}
	s := newTestScraper(f)
	c := NewController(s, nil)

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if res.Ok || res.Cancelled {
		t.Fatalf("res = %+v", res)
	}
	if res.Err == "" {
		t.Error("missing error on technical failure")
	}
	if len(res.Items) != 0 {
		t.Error("failed site must contribute no items")
	}
}

// slowFetcher answers the first call immediately and then hangs until the
// request context expires.
type slowFetcher struct {
	first *fetch.Result
	calls int
}

func (s *slowFetcher) Fetch(ctx context.Context, url string, opt fetch.Options) (*fetch.Result, error) {
	s.calls++
	if s.calls == 1 {
		return s.first, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunSiteDeadlineAbortIsFailure(t *testing.T) {
	f := &slowFetcher{first: htmlResult(cardsHTML("strict", 7, 9000))}
	c := NewController(newTestScraper(f), nil)
	c.Deadline = 50 * time.Millisecond

	res := c.RunSite(context.Background(), testSite(), listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 10000})
	if res.Ok {
		t.Fatalf("res = %+v, a site deadline abort is a technical failure", res)
	}
	if res.Cancelled {
		t.Error("deadline abort must not read as caller cancellation")
	}
	if res.Err == "" {
		t.Error("missing error on deadline abort")
	}
	if len(res.Items) != 0 {
		t.Errorf("aborted site must contribute no items, got %d", len(res.Items))
	}
	// The strict pass that completed stays in the audit trail.
	if len(res.Attempts) != 2 || !res.Attempts[0].Ok || res.Attempts[1].Note != "site deadline exceeded" {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestRunSiteCancellation(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult(cardsHTML("x", 1, 9000)), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewController(newTestScraper(f), nil)

	res := c.RunSite(ctx, testSite(), listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if !res.Cancelled {
		t.Fatalf("res = %+v, want Cancelled", res)
	}
	if res.Ok || len(res.Items) != 0 {
		t.Error("cancelled run must carry no items and not be Ok")
	}
}

func TestFetchAndExtractBudgetFilter(t *testing.T) {
	body := `<html><body>
		<div class="card"><a href="/annonce/a"><h3>Peugeot 308 A</h3></a><span class="price">9 000 €</span></div>
		<div class="card"><a href="/annonce/b"><h3>Peugeot 308 B</h3></a><span class="price">11 000 €</span></div>
		<div class="card"><a href="/annonce/c"><h3>Peugeot 308 C</h3></a><span class="price">30 000 €</span></div>
	</body></html>`
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult(body), nil
	}}
	s := newTestScraper(f)

	q := listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 10000}
	items, err := s.FetchAndExtract(context.Background(), testSite(), q)
	if err != nil {
		t.Fatalf("FetchAndExtract: %v", err)
	}
	if len(items) != 1 || *items[0].Price != 9000 {
		t.Fatalf("strict items = %+v", items)
	}

	relaxed := q.ForPass(listing.PassRelaxed)
	items, err = s.FetchAndExtract(context.Background(), testSite(), relaxed)
	if err != nil {
		t.Fatalf("FetchAndExtract relaxed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("relaxed items = %d, want 9000 and 11000 to survive the widened ceiling", len(items))
	}
}

func TestFetchRetriesOnceOnBlock(t *testing.T) {
	n := 0
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		n++
		if n == 1 {
			return &fetch.Result{StatusCode: 403, Blocked: true, BlockSource: "datadome"}, nil
		}
		return htmlResult(cardsHTML("x", 1, 9000)), nil
	}}
	s := newTestScraper(f)

	items, err := s.FetchAndExtract(context.Background(), testSite(), listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if err != nil {
		t.Fatalf("FetchAndExtract: %v", err)
	}
	if f.callCount() != 2 {
		t.Fatalf("fetches = %d, want 2 (one retry)", f.callCount())
	}
	if len(items) != 1 {
		t.Errorf("items = %d", len(items))
	}
}

func TestFetchRetryIsBounded(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return &fetch.Result{StatusCode: 429}, nil
	}}
	s := newTestScraper(f)

	_, err := s.FetchAndExtract(context.Background(), testSite(), listing.Query{Brand: "Peugeot", MaxPrice: 10000})
	if err != nil {
		t.Fatalf("FetchAndExtract: %v", err)
	}
	if f.callCount() != 2 {
		t.Fatalf("fetches = %d, want exactly 2", f.callCount())
	}
}

func TestPageCacheAcrossIdenticalURLs(t *testing.T) {
	f := &stubFetcher{respond: func(url string, _ fetch.Options) (*fetch.Result, error) {
		return htmlResult(cardsHTML("x", 1, 9000)), nil
	}}
	s := newTestScraper(f)
	site := testSite()
	// Without a price ceiling every pass builds the same URL.
	site.BuildURL = func(q listing.Query) string { return "https://cars.example.fr/search" }

	q := listing.Query{Brand: "Peugeot"}
	for i := 0; i < 3; i++ {
		if _, err := s.FetchAndExtract(context.Background(), site, q); err != nil {
			t.Fatalf("FetchAndExtract: %v", err)
		}
	}
	if f.callCount() != 1 {
		t.Fatalf("fetches = %d, want 1 (cache hit)", f.callCount())
	}
}

func TestRenderedModeRequested(t *testing.T) {
	var gotMode fetch.Mode
	f := &stubFetcher{respond: func(url string, opt fetch.Options) (*fetch.Result, error) {
		gotMode = opt.Mode
		return htmlResult(""), nil
	}}
	s := newTestScraper(f)
	site := testSite()
	site.NeedsRender = true

	if _, err := s.FetchAndExtract(context.Background(), site, listing.Query{Brand: "Peugeot"}); err != nil {
		t.Fatalf("FetchAndExtract: %v", err)
	}
	if gotMode != fetch.ModeRendered {
		t.Fatalf("mode = %q, want rendered", gotMode)
	}
}
