package extract

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/mileage"
	"github.com/vigiauto/vigiauto/internal/parse"
)

// Markup reads rendered result cards with the site's selectors. When the
// card selector matches nothing, it degrades to scanning listing links.
type Markup struct{}

func (Markup) Name() string { return "markup" }

func (m Markup) Extract(_ context.Context, in Input) ([]listing.Fragment, error) {
	if in.Page == nil || len(in.Page.Body) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Page.Body))
	if err != nil {
		return nil, err
	}
	if in.Site.CardSelector != "" {
		if frags := m.fromCards(doc, in.Site.FieldSelectors, in.Site.CardSelector); len(frags) > 0 {
			return frags, nil
		}
	}
	if in.Site.LinkPattern != nil {
		return m.fromLinks(doc, in.Site.LinkPattern), nil
	}
	return nil, nil
}

func (Markup) fromCards(doc *goquery.Document, fs map[string]string, cardSel string) []listing.Fragment {
	var out []listing.Fragment
	doc.Find(cardSel).Each(func(_ int, card *goquery.Selection) {
		text := func(field string) string {
			sel, ok := fs[field]
			if !ok {
				return ""
			}
			return strings.TrimSpace(card.Find(sel).First().Text())
		}

		f := listing.Fragment{
			Title:     text("title"),
			PriceText: text("price"),
			City:      text("city"),
		}

		if sel, ok := fs["link"]; ok {
			f.URL, _ = card.Find(sel).First().Attr("href")
		}
		if f.URL == "" && goquery.NodeName(card) == "a" {
			f.URL, _ = card.Attr("href")
		}
		if sel, ok := fs["image"]; ok {
			img := card.Find(sel).First()
			f.ImageURL, _ = img.Attr("src")
			if f.ImageURL == "" {
				f.ImageURL, _ = img.Attr("data-src")
			}
		}

		// Spec blocks mix year, mileage and fuel in free-form text.
		if specs := text("specs"); specs != "" {
			f.Description = specs
			if y, ok := parse.Year(specs); ok {
				f.YearText = strconv.Itoa(y)
			}
			for _, raw := range parse.MileageInText(specs) {
				f.Mileages = append(f.Mileages, listing.RawField{Raw: raw, Source: mileage.SourceAttributes})
			}
		}

		if f.Title == "" && f.URL == "" {
			return
		}
		out = append(out, f)
	})
	return out
}

var priceInTextRe = regexp.MustCompile(`\d{1,3}(?:[\s  .]\d{3})*\s*€`)

// fromLinks is the degraded card-less path: any anchor whose href looks
// like a listing detail page becomes a minimal fragment, with the price
// mined from the anchor text when present.
func (Markup) fromLinks(doc *goquery.Document, pattern *regexp.Regexp) []listing.Fragment {
	seen := make(map[string]bool)
	var out []listing.Fragment
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || !pattern.MatchString(href) || seen[href] {
			return
		}
		seen[href] = true
		text := strings.Join(strings.Fields(a.Text()), " ")
		f := listing.Fragment{Title: text, URL: href}
		if p := priceInTextRe.FindString(text); p != "" {
			f.PriceText = p
		}
		for _, raw := range parse.MileageInText(text) {
			f.Mileages = append(f.Mileages, listing.RawField{Raw: raw, Source: mileage.SourceMarkup})
		}
		if y, ok := parse.Year(text); ok {
			f.YearText = strconv.Itoa(y)
		}
		out = append(out, f)
	})
	return out
}
