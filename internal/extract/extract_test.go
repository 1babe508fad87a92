package extract

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/mileage"
	"github.com/vigiauto/vigiauto/internal/sites"
)

func testSite() *sites.Site {
	return &sites.Site{
		Name:           "testsite",
		BaseURL:        "https://cars.example.fr",
		EmbeddedObject: "__NEXT_DATA__",
		EmbeddedPath:   []string{"props", "ads"},
		CardSelector:   "div.card",
		FieldSelectors: map[string]string{
			"title": "h3",
			"price": "span.price",
			"specs": "div.specs",
			"city":  "span.city",
			"link":  "a",
			"image": "img",
		},
		LinkPattern: regexp.MustCompile(`/annonce/\d+`),
	}
}

func page(body string) *fetch.Result {
	return &fetch.Result{StatusCode: 200, Body: []byte(body)}
}

func TestStructuredStrategy(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"listings": []map[string]any{
			{"title": "Peugeot 308 Allure", "price": 11500, "year": 2019,
				"mileage": 84000, "url": "https://cars.example.fr/annonce/1"},
			{"navigation": "footer"},
		},
	})
	in := Input{Site: testSite(), Page: &fetch.Result{Structured: payload}}
	frags, err := (Structured{}).Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	f := frags[0]
	if f.Title != "Peugeot 308 Allure" || f.PriceText != "11500" || f.YearText != "2019" {
		t.Errorf("fragment = %+v", f)
	}
	if len(f.Mileages) != 1 || f.Mileages[0].Source != mileage.SourceStructured {
		t.Errorf("mileages = %+v", f.Mileages)
	}
}

func TestStructuredSkipsWithoutPayload(t *testing.T) {
	frags, err := (Structured{}).Extract(context.Background(),
		Input{Site: testSite(), Page: page("<html></html>")})
	if err != nil || frags != nil {
		t.Fatalf("got %v, %v; want nil, nil", frags, err)
	}
}

func TestEmbeddedNextData(t *testing.T) {
	state, _ := json.Marshal(map[string]any{
		"props": map[string]any{
			"ads": []map[string]any{
				{"title": "Renault Clio V", "price": 9900, "url": "/annonce/42", "mileage": 45000},
			},
		},
	})
	body := `<html><head><script id="__NEXT_DATA__" type="application/json">` +
		string(state) + `</script></head><body></body></html>`
	frags, err := (Embedded{}).Extract(context.Background(), Input{Site: testSite(), Page: page(body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 || frags[0].Title != "Renault Clio V" {
		t.Fatalf("frags = %+v", frags)
	}
}

func TestEmbeddedWindowAssignment(t *testing.T) {
	site := testSite()
	site.EmbeddedObject = "window.__STATE__"
	site.EmbeddedPath = []string{"ads"}
	body := `<html><script>window.__STATE__ = {"ads":[{"title":"Golf 7","url":"/annonce/7","price":"12 000"}]};</script></html>`
	frags, err := (Embedded{}).Extract(context.Background(), Input{Site: site, Page: page(body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 || frags[0].Title != "Golf 7" || frags[0].PriceText != "12 000" {
		t.Fatalf("frags = %+v", frags)
	}
}

func TestEmbeddedJSONLDFallback(t *testing.T) {
	body := `<html><script type="application/ld+json">{
		"@type":"ItemList",
		"itemListElement":[
			{"item":{"@type":"Car","name":"Citroen C3","url":"https://cars.example.fr/annonce/9",
				"offers":{"price":8500},
				"mileageFromOdometer":{"value":61000}}}
		]}</script></html>`
	site := testSite()
	site.EmbeddedObject = ""
	frags, err := (Embedded{}).Extract(context.Background(), Input{Site: site, Page: page(body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	if frags[0].Title != "Citroen C3" || frags[0].PriceText != "8500" {
		t.Errorf("fragment = %+v", frags[0])
	}
}

func TestMarkupCards(t *testing.T) {
	body := `<html><body>
		<div class="card">
			<a href="/annonce/100"><h3>Peugeot 308 GT Line</h3></a>
			<span class="price">13 490 €</span>
			<div class="specs">2018 · 92 000 km · Diesel</div>
			<span class="city">Nantes</span>
			<img src="/img/100.jpg">
		</div>
		<div class="card"><span class="price">1 €</span></div>
	</body></html>`
	frags, err := (Markup{}).Extract(context.Background(), Input{Site: testSite(), Page: page(body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	f := frags[0]
	if f.Title != "Peugeot 308 GT Line" || f.URL != "/annonce/100" || f.City != "Nantes" {
		t.Errorf("fragment = %+v", f)
	}
	if f.YearText != "2018" {
		t.Errorf("YearText = %q", f.YearText)
	}
	if len(f.Mileages) != 1 || f.Mileages[0].Source != mileage.SourceAttributes {
		t.Errorf("Mileages = %+v", f.Mileages)
	}
}

func TestMarkupLinkScanFallback(t *testing.T) {
	body := `<html><body>
		<a href="/annonce/1">Peugeot 208 2017 58 000 km 9 500 €</a>
		<a href="/annonce/1">duplicate</a>
		<a href="/mentions-legales">Mentions légales</a>
	</body></html>`
	frags, err := (Markup{}).Extract(context.Background(), Input{Site: testSite(), Page: page(body)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	f := frags[0]
	if f.URL != "/annonce/1" || f.PriceText == "" || len(f.Mileages) != 1 {
		t.Errorf("fragment = %+v", f)
	}
	if f.Mileages[0].Source != mileage.SourceMarkup {
		t.Errorf("source = %q", f.Mileages[0].Source)
	}
}

type fixedStrategy struct {
	name  string
	frags []listing.Fragment
	err   error
	calls int
}

func (f *fixedStrategy) Name() string { return f.name }
func (f *fixedStrategy) Extract(context.Context, Input) ([]listing.Fragment, error) {
	f.calls++
	return f.frags, f.err
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	first := &fixedStrategy{name: "first"}
	second := &fixedStrategy{name: "second", frags: []listing.Fragment{{Title: "x", URL: "/a"}}}
	third := &fixedStrategy{name: "third"}
	c := NewChainWith(nil, first, second, third)

	frags, strategy, err := c.Run(context.Background(), Input{Site: testSite(), Page: page("")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strategy != "second" || len(frags) != 1 {
		t.Fatalf("strategy = %q, frags = %d", strategy, len(frags))
	}
	if frags[0].Strategy != "second" {
		t.Errorf("fragment strategy = %q", frags[0].Strategy)
	}
	if third.calls != 0 {
		t.Error("third strategy ran after a success")
	}
}

func TestChainSwallowsStrategyErrors(t *testing.T) {
	failing := &fixedStrategy{name: "bad", err: errors.New("boom")}
	winner := &fixedStrategy{name: "good", frags: []listing.Fragment{{Title: "x", URL: "/a"}}}
	c := NewChainWith(nil, failing, winner)

	_, strategy, err := c.Run(context.Background(), Input{Site: testSite(), Page: page("")})
	if err != nil || strategy != "good" {
		t.Fatalf("strategy = %q, err = %v", strategy, err)
	}
}

func TestChainExhaustedIsNotError(t *testing.T) {
	c := NewChainWith(nil, &fixedStrategy{name: "a"}, &fixedStrategy{name: "b"})
	frags, strategy, err := c.Run(context.Background(), Input{Site: testSite(), Page: page("")})
	if err != nil || strategy != "" || frags != nil {
		t.Fatalf("got %v, %q, %v", frags, strategy, err)
	}
}

func TestChainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fixedStrategy{name: "a", frags: []listing.Fragment{{Title: "x"}}}
	c := NewChainWith(nil, s)
	_, _, err := c.Run(ctx, Input{Site: testSite(), Page: page("")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.calls != 0 {
		t.Error("strategy ran after cancellation")
	}
}

func TestNormalize(t *testing.T) {
	frags := []listing.Fragment{
		{
			Title:     "Peugeot 308  1.5 BlueHDi",
			PriceText: "11 500 €",
			YearText:  "2019",
			URL:       "/annonce/1",
			Mileages:  []listing.RawField{{Raw: "84 000 km", Source: mileage.SourceAttributes}},
			Strategy:  "markup",
		},
		{Title: "No URL at all", PriceText: "5 000 €"},
		{Title: "Bad scheme", URL: "javascript:alert(1)"},
		{URL: "/annonce/3"},
	}
	got := Normalize(frags, testSite())
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.URL != "https://cars.example.fr/annonce/1" {
		t.Errorf("URL = %q", l.URL)
	}
	if l.Title != "Peugeot 308 1.5 BlueHDi" {
		t.Errorf("Title = %q (whitespace not collapsed)", l.Title)
	}
	if l.Price == nil || *l.Price != 11500 {
		t.Errorf("Price = %v", l.Price)
	}
	if l.Year == nil || *l.Year != 2019 {
		t.Errorf("Year = %v", l.Year)
	}
	if l.Mileage == nil || *l.Mileage != 84000 {
		t.Errorf("Mileage = %v", l.Mileage)
	}
	if l.Source != "testsite" || l.Strategy != "markup" {
		t.Errorf("Source/Strategy = %q/%q", l.Source, l.Strategy)
	}
	if l.ID == "" {
		t.Error("missing ID")
	}
}

func TestNormalizeResolvesMileageConflict(t *testing.T) {
	frags := []listing.Fragment{{
		Title:    "Peugeot 2008 essence",
		YearText: "2016",
		URL:      "https://cars.example.fr/annonce/5",
		Mileages: []listing.RawField{
			{Raw: "150 000 km", Source: mileage.SourceStructured},
			{Raw: "15 000 km", Source: mileage.SourceMarkup},
		},
	}}
	got := Normalize(frags, testSite())
	if len(got) != 1 {
		t.Fatalf("got %d listings", len(got))
	}
	l := got[0]
	if l.Mileage == nil || *l.Mileage != 150000 {
		t.Fatalf("Mileage = %v, want structured 150000", l.Mileage)
	}
	if !l.HasFlag(listing.FlagMileageInconsistent) {
		t.Error("divergent candidates should flag mileage_inconsistent")
	}
	if l.Fuel != "essence" {
		t.Errorf("Fuel = %q", l.Fuel)
	}
}

func TestNormalizeBuildsCandidatesFromText(t *testing.T) {
	frags := []listing.Fragment{{
		Title:       "Clio IV",
		YearText:    "2018",
		URL:         "https://cars.example.fr/annonce/8",
		Description: "Très bon état, 72 000 km, entretien à jour.",
	}}
	got := Normalize(frags, testSite())
	if len(got) != 1 {
		t.Fatalf("got %d listings", len(got))
	}
	l := got[0]
	if l.Mileage == nil || *l.Mileage != 72000 {
		t.Fatalf("Mileage = %v, want 72000 from description", l.Mileage)
	}
	if len(l.MileageCandidates) != 1 || l.MileageCandidates[0].Source != mileage.SourceRegex {
		t.Errorf("candidates = %+v", l.MileageCandidates)
	}
}

func TestChainTimeoutPropagates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	c := NewChainWith(nil, &fixedStrategy{name: "a"})
	_, _, err := c.Run(ctx, Input{Site: testSite(), Page: page("")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
