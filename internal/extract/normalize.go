package extract

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/mileage"
	"github.com/vigiauto/vigiauto/internal/parse"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// Normalize validates fragments into listings. Fragments without a title
// or without a resolvable absolute http(s) URL are dropped; everything
// else is parsed, mileage-resolved and tagged with the source site.
func Normalize(frags []listing.Fragment, site *sites.Site) []listing.Listing {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		base = nil
	}

	out := make([]listing.Listing, 0, len(frags))
	for _, f := range frags {
		title := strings.Join(strings.Fields(f.Title), " ")
		if title == "" {
			continue
		}
		abs, ok := resolveURL(base, f.URL)
		if !ok {
			continue
		}

		l := listing.Listing{
			ID:          uuid.NewString(),
			Title:       title,
			URL:         abs,
			City:        strings.TrimSpace(f.City),
			Description: strings.TrimSpace(f.Description),
			Source:      site.Name,
			Strategy:    f.Strategy,
		}
		if img, ok := resolveURL(base, f.ImageURL); ok {
			l.ImageURL = img
		}
		if p, ok := parse.Price(f.PriceText); ok {
			l.Price = &p
		}
		year := 0
		if y, ok := parse.Year(f.YearText); ok {
			year = y
			l.Year = &y
		}
		if fuel := parse.Fuel(title + " " + l.Description); fuel != "" {
			l.Fuel = fuel
		}
		if gb := parse.Gearbox(title + " " + l.Description); gb != "" {
			l.Gearbox = gb
		}

		cands := make([]listing.MileageCandidate, 0, len(f.Mileages)+2)
		for _, rf := range f.Mileages {
			if v, ok := parse.Mileage(rf.Raw); ok {
				cands = append(cands, listing.MileageCandidate{Value: v, Source: rf.Source, Raw: rf.Raw})
			}
		}
		cands = append(cands, mileage.FromText(title, l.Description)...)

		res := mileage.Resolve(cands, year)
		l.Mileage = res.Final
		l.MileageConfidence = res.Confidence
		l.MileageCandidates = cands
		l.RedFlags = append(l.RedFlags, res.Flags...)

		out = append(out, l)
	}
	return out
}

// resolveURL makes href absolute against base and accepts only http(s)
// URLs with a host.
func resolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}
