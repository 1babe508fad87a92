// Package listing defines the domain types shared by the acquisition and
// reconciliation pipeline: search queries, raw extraction fragments,
// normalized listings and the per-site/per-search result records.
package listing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Millis is a duration serialized as integer milliseconds.
type Millis time.Duration

func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(m).Milliseconds())
}

func (m *Millis) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Millis(time.Duration(ms) * time.Millisecond)
	return nil
}

func (m Millis) Duration() time.Duration { return time.Duration(m) }
func (m Millis) Milliseconds() int64     { return time.Duration(m).Milliseconds() }
func (m Millis) String() string          { return time.Duration(m).String() }

// Pass identifies one query relaxation level. Passes are strictly ordered:
// strict, then relaxed, then opportunity. Each pass widens the result space.
type Pass string

const (
	PassStrict      Pass = "strict"
	PassRelaxed     Pass = "relaxed"
	PassOpportunity Pass = "opportunity"
)

// Confidence grades how much the resolved mileage can be trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// FlagType names a data-quality anomaly attached to a listing.
type FlagType string

const (
	FlagMileageInconsistent FlagType = "mileage_inconsistent"
	FlagPriceTooLow         FlagType = "price_too_low"
	FlagMissingInspection   FlagType = "missing_inspection"
	FlagInconsistentListing FlagType = "inconsistent_listing"
	FlagSuspiciousSeller    FlagType = "suspicious_seller"
)

// Severity of a red flag. Severities are fixed per rule, never computed.
type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RedFlag is a named anomaly signal. It belongs to exactly one listing and
// is independent of the listing's numeric score.
type RedFlag struct {
	Type     FlagType          `json:"type"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

// ErrNoBrand is returned when a query is submitted without a brand.
var ErrNoBrand = errors.New("listing: query brand is required")

// Query describes one vehicle search. It is immutable once a search starts;
// passes derive transformed copies via ForPass and never mutate the original.
type Query struct {
	Brand         string   `json:"brand"`
	Model         string   `json:"model,omitempty"`
	MaxPrice      int      `json:"maxPrice,omitempty"`
	MinPrice      int      `json:"minPrice,omitempty"`
	YearMin       int      `json:"yearMin,omitempty"`
	YearMax       int      `json:"yearMax,omitempty"`
	MileageMax    int      `json:"mileageMax,omitempty"`
	Fuel          string   `json:"fuel,omitempty"`
	Location      string   `json:"location,omitempty"`
	RadiusKm      int      `json:"radiusKm,omitempty"`
	ExcludedSites []string `json:"excludedSites,omitempty"`
}

// Validate checks the minimum the engine needs to run a search.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Brand) == "" {
		return ErrNoBrand
	}
	return nil
}

// Excludes reports whether the named site is excluded from this search.
func (q Query) Excludes(site string) bool {
	for _, s := range q.ExcludedSites {
		if strings.EqualFold(s, site) {
			return true
		}
	}
	return false
}

// ForPass derives the query copy used for one pass. Relaxed widens the price
// ceiling by 10% and drops the location constraint; opportunity widens it by
// 20%, drops location and matches on brand only.
func (q Query) ForPass(p Pass) Query {
	out := q
	switch p {
	case PassRelaxed:
		if out.MaxPrice > 0 {
			out.MaxPrice = out.MaxPrice * 11 / 10
		}
		out.Location = ""
		out.RadiusKm = 0
	case PassOpportunity:
		if out.MaxPrice > 0 {
			out.MaxPrice = out.MaxPrice * 12 / 10
		}
		out.Location = ""
		out.RadiusKm = 0
		out.Model = ""
	}
	return out
}

// RawField carries one extracted text value together with the identifier of
// the extraction path that produced it.
type RawField struct {
	Raw    string `json:"raw"`
	Source string `json:"source"`
}

// Fragment is the loosely-typed output of one extraction strategy, prior to
// validation. Any field may be absent. Fragments never cross a component
// boundary: they are normalized into Listings inside the extraction layer.
type Fragment struct {
	Title       string     `json:"title,omitempty"`
	PriceText   string     `json:"price,omitempty"`
	YearText    string     `json:"year,omitempty"`
	Mileages    []RawField `json:"mileages,omitempty"`
	URL         string     `json:"url,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	City        string     `json:"city,omitempty"`
	Description string     `json:"description,omitempty"`
	// Strategy identifies the extraction strategy that produced the fragment.
	Strategy string `json:"strategy,omitempty"`
}

// MileageCandidate is one plausible odometer reading for a listing.
type MileageCandidate struct {
	Value  int    `json:"value"`
	Source string `json:"source"`
	Raw    string `json:"raw"`
}

// Listing is a validated, site-tagged record. The URL is always absolute and
// syntactically valid; fragments that cannot satisfy that are discarded
// before a Listing exists.
type Listing struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Price             *int               `json:"price,omitempty"`
	Year              *int               `json:"year,omitempty"`
	Mileage           *int               `json:"mileageFinal,omitempty"`
	MileageConfidence Confidence         `json:"mileageConfidence"`
	MileageCandidates []MileageCandidate `json:"mileageCandidates,omitempty"`
	URL               string             `json:"url"`
	ImageURL          string             `json:"imageUrl,omitempty"`
	City              string             `json:"city,omitempty"`
	Description       string             `json:"description,omitempty"`
	Fuel              string             `json:"fuel,omitempty"`
	Gearbox           string             `json:"gearbox,omitempty"`
	Source            string             `json:"source"`
	Strategy          string             `json:"strategy,omitempty"`
	Score             int                `json:"score"`
	// BaseScore is an externally supplied relevancy score in [0,100], blended
	// into the final score at 30% weight when present.
	BaseScore *float64  `json:"baseScore,omitempty"`
	RedFlags  []RedFlag `json:"redFlags,omitempty"`
}

// Completeness weights, shared by deduplication tie-breaking and scoring.
const (
	weightTitle   = 20
	weightPrice   = 25
	weightYear    = 20
	weightMileage = 20
	weightImage   = 10
	weightURL     = 5
)

// Completeness scores field presence on a 0-100 scale.
func (l *Listing) Completeness() int {
	c := 0
	if l.Title != "" {
		c += weightTitle
	}
	if l.Price != nil {
		c += weightPrice
	}
	if l.Year != nil {
		c += weightYear
	}
	if l.Mileage != nil {
		c += weightMileage
	}
	if l.ImageURL != "" {
		c += weightImage
	}
	if l.URL != "" {
		c += weightURL
	}
	return c
}

// HasFlag reports whether the listing carries a flag of the given type.
func (l *Listing) HasFlag(t FlagType) bool {
	for _, f := range l.RedFlags {
		if f.Type == t {
			return true
		}
	}
	return false
}

// Attempt is one append-only audit record for a pass run against a site.
type Attempt struct {
	Pass     Pass          `json:"pass"`
	Ok       bool          `json:"ok"`
	Items    int           `json:"itemCount"`
	Duration Millis `json:"durationMs"`
	Note     string        `json:"note,omitempty"`
}

// SiteResult is the outcome of running all passes against one site.
// Ok is false only for technical failure (timeout, transport error); a
// successful fetch that extracted zero listings is Ok=true with empty Items.
// That distinction is load-bearing for callers and must be preserved.
type SiteResult struct {
	Site      string    `json:"site"`
	Ok        bool      `json:"ok"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Items     []Listing `json:"items"`
	Attempts  []Attempt `json:"attempts"`
	Err       string    `json:"error,omitempty"`
}

// Stats aggregates one search run.
type Stats struct {
	TotalItems   int    `json:"totalItems"`
	SitesScraped int    `json:"sitesScraped"`
	Duration     Millis `json:"totalMs"`
}

// Result is the final deduplicated, scored, sorted output of a search,
// plus per-site diagnostics. The orchestrator always produces one, even
// when every site failed technically.
type Result struct {
	Listings []Listing    `json:"listings"`
	Sites    []SiteResult `json:"siteResults"`
	Stats    Stats        `json:"stats"`
}
