// Package sites holds the per-marketplace configuration: query-URL
// builders, markup patterns and embedded-state locations. All fallback
// logic lives in the extraction chain; a Site only parameterizes it.
package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// Site describes one external marketplace.
type Site struct {
	Name    string
	BaseURL string
	// SupportsOpportunity allows the third, widest query pass.
	SupportsOpportunity bool
	// NeedsRender marks sites whose result cards only exist after JS runs.
	NeedsRender bool
	// PassTimeout bounds one pass against this site.
	PassTimeout time.Duration

	// EmbeddedObject is the name of the JSON blob in server-rendered
	// markup ("__NEXT_DATA__", "window.__INITIAL_STATE__", ...).
	EmbeddedObject string
	// EmbeddedPath walks from that object to the array of ads.
	EmbeddedPath []string
	// EmbeddedFields maps our field names to the site's JSON keys.
	EmbeddedFields map[string]string

	// CardSelector matches one result card in rendered markup.
	CardSelector string
	// FieldSelectors locate fields inside a card.
	FieldSelectors map[string]string
	// LinkPattern recognizes listing detail URLs during link-scan fallback.
	LinkPattern *regexp.Regexp

	// BuildURL renders the search URL for one pass-derived query.
	BuildURL func(q listing.Query) string
}

// Host returns the site's hostname.
func (s *Site) Host() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return s.BaseURL
	}
	return u.Hostname()
}

// Defaults returns the built-in marketplace profiles.
func Defaults() []*Site {
	return []*Site{LaCentrale(), LeBonCoin(), AutoScout(), ParuVendu()}
}

// ByName resolves site names (case-insensitive) against the defaults.
func ByName(names []string) []*Site {
	if len(names) == 0 {
		return Defaults()
	}
	var out []*Site
	for _, s := range Defaults() {
		for _, n := range names {
			if strings.EqualFold(n, s.Name) {
				out = append(out, s)
			}
		}
	}
	return out
}

func slug(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}

// LaCentrale serves results from server-rendered Next.js state.
func LaCentrale() *Site {
	base := "https://www.lacentrale.fr"
	return &Site{
		Name:                "lacentrale",
		BaseURL:             base,
		SupportsOpportunity: true,
		PassTimeout:         12 * time.Second,
		EmbeddedObject:      "__NEXT_DATA__",
		EmbeddedPath:        []string{"props", "pageProps", "searchData", "ads"},
		EmbeddedFields: map[string]string{
			"title":   "title",
			"price":   "price",
			"year":    "year",
			"mileage": "mileage",
			"url":     "url",
			"image":   "photoUrl",
			"city":    "city",
		},
		CardSelector: "div.searchCard",
		FieldSelectors: map[string]string{
			"title": "h3.searchCard__title",
			"price": "div.searchCard__fieldPrice",
			"specs": "div.searchCard__characteristics",
			"city":  "div.searchCard__dptCont",
			"link":  "a.searchCard__link",
			"image": "img.searchCard__visual",
		},
		LinkPattern: regexp.MustCompile(`/auto-occasion-annonce-\d+\.html`),
		BuildURL: func(q listing.Query) string {
			v := url.Values{}
			makeModel := strings.ToUpper(q.Brand)
			if q.Model != "" {
				makeModel += ":" + strings.ToUpper(q.Model)
			}
			v.Set("makesModelsCommercialNames", makeModel)
			if q.MaxPrice > 0 {
				v.Set("priceMax", fmt.Sprintf("%d", q.MaxPrice))
			}
			if q.MinPrice > 0 {
				v.Set("priceMin", fmt.Sprintf("%d", q.MinPrice))
			}
			if q.YearMin > 0 {
				v.Set("yearMin", fmt.Sprintf("%d", q.YearMin))
			}
			if q.YearMax > 0 {
				v.Set("yearMax", fmt.Sprintf("%d", q.YearMax))
			}
			if q.MileageMax > 0 {
				v.Set("mileageMax", fmt.Sprintf("%d", q.MileageMax))
			}
			if q.Fuel != "" {
				v.Set("energies", q.Fuel)
			}
			if q.Location != "" {
				v.Set("cities", slug(q.Location))
				if q.RadiusKm > 0 {
					v.Set("radius", fmt.Sprintf("%d", q.RadiusKm))
				}
			}
			return base + "/listing?" + v.Encode()
		},
	}
}

// LeBonCoin needs rendering; its cards are client-side.
func LeBonCoin() *Site {
	base := "https://www.leboncoin.fr"
	return &Site{
		Name:                "leboncoin",
		BaseURL:             base,
		SupportsOpportunity: true,
		NeedsRender:         true,
		PassTimeout:         15 * time.Second,
		EmbeddedObject:      "window.__REDIAL_PROPS__",
		EmbeddedPath:        []string{"data", "ads"},
		EmbeddedFields: map[string]string{
			"title":   "subject",
			"price":   "price",
			"url":     "url",
			"image":   "thumb_url",
			"city":    "city",
			"year":    "regdate",
			"mileage": "mileage",
		},
		CardSelector: "a[data-test-id=ad]",
		FieldSelectors: map[string]string{
			"title": "p[data-test-id=adcard-title]",
			"price": "span[data-test-id=price]",
			"specs": "div[data-test-id=ad-params]",
			"city":  "p[data-test-id=city]",
			"image": "img",
		},
		LinkPattern: regexp.MustCompile(`/ad/voitures/\d+`),
		BuildURL: func(q listing.Query) string {
			v := url.Values{}
			v.Set("category", "2") // voitures
			text := q.Brand
			if q.Model != "" {
				text += " " + q.Model
			}
			v.Set("text", text)
			if q.MaxPrice > 0 {
				v.Set("price", fmt.Sprintf("min-%d", q.MaxPrice))
			}
			if q.MileageMax > 0 {
				v.Set("mileage", fmt.Sprintf("min-%d", q.MileageMax))
			}
			if q.YearMin > 0 || q.YearMax > 0 {
				lo, hi := "min", "max"
				if q.YearMin > 0 {
					lo = fmt.Sprintf("%d", q.YearMin)
				}
				if q.YearMax > 0 {
					hi = fmt.Sprintf("%d", q.YearMax)
				}
				v.Set("regdate", lo+"-"+hi)
			}
			if q.Location != "" {
				loc := slug(q.Location)
				if q.RadiusKm > 0 {
					loc += fmt.Sprintf("_%d", q.RadiusKm*1000)
				}
				v.Set("locations", loc)
			}
			return base + "/recherche?" + v.Encode()
		},
	}
}

// AutoScout exposes clean JSON-LD alongside its markup.
func AutoScout() *Site {
	base := "https://www.autoscout24.fr"
	return &Site{
		Name:         "autoscout24",
		BaseURL:      base,
		PassTimeout:  10 * time.Second,
		CardSelector: "article.cldt-summary-full-item",
		FieldSelectors: map[string]string{
			"title": "h2",
			"price": "p[data-testid=regular-price]",
			"specs": "div[data-testid=listing-details-attributes]",
			"city":  "span[data-testid=sellerinfo-address]",
			"link":  "a",
			"image": "img",
		},
		LinkPattern: regexp.MustCompile(`/annonces/[a-z0-9-]+`),
		BuildURL: func(q listing.Query) string {
			path := "/lst/" + slug(q.Brand)
			if q.Model != "" {
				path += "/" + slug(q.Model)
			}
			v := url.Values{}
			if q.MaxPrice > 0 {
				v.Set("priceto", fmt.Sprintf("%d", q.MaxPrice))
			}
			if q.MinPrice > 0 {
				v.Set("pricefrom", fmt.Sprintf("%d", q.MinPrice))
			}
			if q.YearMin > 0 {
				v.Set("fregfrom", fmt.Sprintf("%d", q.YearMin))
			}
			if q.YearMax > 0 {
				v.Set("fregto", fmt.Sprintf("%d", q.YearMax))
			}
			if q.MileageMax > 0 {
				v.Set("kmto", fmt.Sprintf("%d", q.MileageMax))
			}
			if q.Fuel != "" {
				v.Set("fuel", q.Fuel)
			}
			if len(v) == 0 {
				return base + path
			}
			return base + path + "?" + v.Encode()
		},
	}
}

// ParuVendu is plain server-rendered markup, no embedded state worth
// parsing.
func ParuVendu() *Site {
	base := "https://www.paruvendu.fr"
	return &Site{
		Name:                "paruvendu",
		BaseURL:             base,
		SupportsOpportunity: true,
		PassTimeout:         10 * time.Second,
		CardSelector:        "div.ergov3-annonce",
		FieldSelectors: map[string]string{
			"title": "h3",
			"price": "div.ergov3-priceannonce",
			"specs": "div.ergov3-txtannonce",
			"city":  "div.ergov3-geoloc",
			"link":  "a",
			"image": "img",
		},
		LinkPattern: regexp.MustCompile(`/a/voiture-occasion/[a-z0-9-]+/`),
		BuildURL: func(q listing.Query) string {
			v := url.Values{}
			text := q.Brand
			if q.Model != "" {
				text += " " + q.Model
			}
			v.Set("fulltext", text)
			if q.MaxPrice > 0 {
				v.Set("px1", fmt.Sprintf("%d", q.MaxPrice))
			}
			if q.MinPrice > 0 {
				v.Set("px0", fmt.Sprintf("%d", q.MinPrice))
			}
			if q.Location != "" {
				v.Set("lo", slug(q.Location))
			}
			return base + "/auto-moto/listefo/default/default?" + v.Encode()
		},
	}
}
