//go:build integration

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/vigiauto/vigiauto/internal/extract"
	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/fingerprint"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/scrape"
	"github.com/vigiauto/vigiauto/internal/sites"
	"github.com/vigiauto/vigiauto/pkg/ratelimit"
	"github.com/vigiauto/vigiauto/pkg/useragent"
)

// Full stack over real HTTP: fetcher, extraction chain, pass controller
// and orchestrator against fake marketplaces.
func TestIntegration_SearchAcrossFakeMarketplaces(t *testing.T) {
	// Marketplace one ships its ads as embedded Next.js state.
	embeddedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := json.Marshal(map[string]any{
			"props": map[string]any{
				"ads": []map[string]any{
					{"title": "Peugeot 308 1.2 PureTech Allure", "price": 11200, "year": 2019,
						"mileage": 78000, "url": "/annonce/101", "city": "Lyon"},
					{"title": "Peugeot 308 1.5 BlueHDi GT", "price": 9800, "year": 2018,
						"mileage": 95000, "url": "/annonce/102", "city": "Grenoble"},
					{"title": "Peugeot 308 SW 1.6 HDi", "price": 8900, "year": 2017,
						"mileage": 120000, "url": "/annonce/103", "city": "Valence"},
				},
			},
		})
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><script id="__NEXT_DATA__" type="application/json">%s</script></head><body></body></html>`, state)
	}))
	defer embeddedSrv.Close()

	// Marketplace two is plain markup; one ad admits it has no vehicle
	// inspection.
	markupSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="card">
				<a href="/annonce/201"><h3>Peugeot 308 Active</h3></a>
				<span class="price">10 500 €</span>
				<div class="specs">2019 · 81 000 km</div>
			</div>
			<div class="card">
				<a href="/annonce/202"><h3>Peugeot 308 Access</h3></a>
				<span class="price">7 900 €</span>
				<div class="specs">2017 · 140 000 km · vendu sans controle technique</div>
			</div>
		</body></html>`)
	}))
	defer markupSrv.Close()

	// Marketplace three is down.
	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadSrv.Close()

	fetcher, err := fetch.NewHTTPFetcher(fetch.HTTPConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.New(nil),
		Limiter:     ratelimit.New(100, 0),
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	mkSite := func(name, base string) *sites.Site {
		return &sites.Site{
			Name:           name,
			BaseURL:        base,
			PassTimeout:    3 * time.Second,
			EmbeddedObject: "__NEXT_DATA__",
			EmbeddedPath:   []string{"props", "ads"},
			CardSelector:   "div.card",
			FieldSelectors: map[string]string{
				"title": "h3",
				"price": "span.price",
				"specs": "div.specs",
				"link":  "a",
			},
			LinkPattern: regexp.MustCompile(`/annonce/\d+`),
			BuildURL: func(q listing.Query) string {
				return fmt.Sprintf("%s/search?max=%d", base, q.MaxPrice)
			},
		}
	}

	scraper := scrape.NewScraper(&fetch.Capability{HTTP: fetcher}, extract.NewChain(nil, nil), nil)
	scraper.RetryBackoff = 10 * time.Millisecond
	engine := New(scrape.NewController(scraper, nil), []*sites.Site{
		mkSite("embedded-market", embeddedSrv.URL),
		mkSite("markup-market", markupSrv.URL),
		mkSite("dead-market", deadSrv.URL),
	}, nil)

	res, err := engine.Search(context.Background(),
		listing.Query{Brand: "Peugeot", Model: "308", MaxPrice: 12000})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if res.Stats.SitesScraped != 2 {
		t.Fatalf("SitesScraped = %d, want 2", res.Stats.SitesScraped)
	}
	if len(res.Listings) != 5 {
		t.Fatalf("listings = %d, want 5", len(res.Listings))
	}

	byName := map[string]listing.SiteResult{}
	for _, sr := range res.Sites {
		byName[sr.Site] = sr
	}
	if sr := byName["dead-market"]; sr.Ok || sr.Err == "" {
		t.Errorf("dead site = %+v, want Ok=false with error", sr)
	}
	if sr := byName["embedded-market"]; !sr.Ok || len(sr.Items) != 3 {
		t.Errorf("embedded site = %+v", sr)
	}

	strategies := map[string]bool{}
	var sansCT *listing.Listing
	for i := range res.Listings {
		l := &res.Listings[i]
		strategies[l.Strategy] = true
		if l.Score < 0 || l.Score > 100 {
			t.Errorf("score out of range: %d (%s)", l.Score, l.Title)
		}
		if l.Title == "Peugeot 308 Access" {
			sansCT = l
		}
	}
	if !strategies["embedded"] || !strategies["markup"] {
		t.Errorf("strategies seen = %v", strategies)
	}
	for i := 1; i < len(res.Listings); i++ {
		if res.Listings[i-1].Score < res.Listings[i].Score {
			t.Fatalf("listings not ordered by score at %d", i)
		}
	}

	if sansCT == nil {
		t.Fatal("inspection-free listing missing from results")
	}
	if !sansCT.HasFlag(listing.FlagMissingInspection) {
		t.Errorf("missing_inspection flag absent: %+v", sansCT.RedFlags)
	}
	if sansCT.Mileage == nil || *sansCT.Mileage != 140000 {
		t.Errorf("mileage = %v", sansCT.Mileage)
	}
}
