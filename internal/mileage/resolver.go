// Package mileage picks the most plausible odometer reading out of the
// candidates extracted from one listing and surfaces inconsistency flags
// when the candidates disagree in diagnostic ways.
package mileage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/parse"
)

const (
	// MaxPlausible is the upper bound for a usable odometer value, in km.
	MaxPlausible = 1_000_000
	// suspectFreshKm: below this, a vehicle at least one year old is either
	// tampered with or the listing has a typo.
	suspectFreshKm = 500
	// loneLowKm: a single reading below this on a vehicle two or more years
	// old has nothing corroborating it; rollback or typo is likelier than
	// genuine low usage, so no value is resolved.
	loneLowKm = 2_000
	// ExpectedKmPerYear is the baseline annual usage for the sanity band.
	ExpectedKmPerYear = 15_000
	// bandTolerance widens the expected-value band by ±50%.
	bandTolerance = 0.5
	// divergenceRatio: top two candidates further apart than this flag the
	// listing regardless of which value wins.
	divergenceRatio = 2.0
)

// Source classes in decreasing reliability order.
const (
	SourceStructured = "structured"
	SourceAttributes = "attributes"
	SourceMarkup     = "markup"
	SourceRegex      = "regex"
)

var sourcePriority = map[string]int{
	SourceStructured: 4,
	SourceAttributes: 3,
	SourceMarkup:     2,
	SourceRegex:      1,
}

// Priority maps an extraction-path identifier to its reliability rank.
// Unknown sources rank below free-text regex.
func Priority(source string) int {
	if p, ok := sourcePriority[source]; ok {
		return p
	}
	return 0
}

// FromText mines listing free text (title, description) for "<n> km"
// mentions and returns them as regex-class candidates.
func FromText(texts ...string) []listing.MileageCandidate {
	var out []listing.MileageCandidate
	for _, t := range texts {
		for _, raw := range parse.MileageInText(t) {
			if v, ok := parse.Mileage(raw); ok {
				out = append(out, listing.MileageCandidate{Value: v, Source: SourceRegex, Raw: raw})
			}
		}
	}
	return out
}

// Resolution is the outcome of resolving one listing's candidates.
type Resolution struct {
	Final      *int
	Confidence listing.Confidence
	Notes      []string
	Flags      []listing.RedFlag
}

// Resolve selects the most plausible candidate. Year may be 0 when the
// listing carries none; in that case no age sanity check is possible and
// confidence is capped at low.
func Resolve(candidates []listing.MileageCandidate, year int) Resolution {
	res := Resolution{Confidence: listing.ConfidenceLow}

	valid := make([]listing.MileageCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Value <= 0 || c.Value > MaxPlausible {
			res.Notes = append(res.Notes, fmt.Sprintf("rejected implausible value %d km (%s)", c.Value, c.Source))
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		res.Notes = append(res.Notes, "no plausible odometer candidate")
		return res
	}

	age := 0
	if year > 0 {
		age = time.Now().Year() - year
	}

	// A near-zero reading on a vehicle at least one year old is treated as
	// a critical inconsistency and excluded from selection.
	if age >= 1 {
		kept := valid[:0]
		excluded := 0
		for _, c := range valid {
			if c.Value < suspectFreshKm {
				excluded++
				res.Notes = append(res.Notes, fmt.Sprintf("excluded %d km (%s): vehicle is %d year(s) old", c.Value, c.Source, age))
				continue
			}
			kept = append(kept, c)
		}
		if excluded > 0 {
			res.Flags = append(res.Flags, listing.RedFlag{
				Type:     listing.FlagMileageInconsistent,
				Severity: listing.SeverityCritical,
				Message:  fmt.Sprintf("odometer below %d km on a %d-year-old vehicle", suspectFreshKm, age),
				Details:  map[string]string{"age": fmt.Sprintf("%d", age)},
			})
			if len(kept) < 2 {
				res.Final = nil
				res.Confidence = listing.ConfidenceLow
				return res
			}
		}
		valid = kept
	}

	if age >= 2 && len(valid) == 1 && valid[0].Value < loneLowKm {
		res.Notes = append(res.Notes, fmt.Sprintf("uncorroborated %d km (%s) on a %d-year-old vehicle", valid[0].Value, valid[0].Source, age))
		res.Flags = append(res.Flags, listing.RedFlag{
			Type:     listing.FlagMileageInconsistent,
			Severity: listing.SeverityCritical,
			Message:  fmt.Sprintf("lone odometer reading below %d km on a %d-year-old vehicle", loneLowKm, age),
			Details:  map[string]string{"age": fmt.Sprintf("%d", age)},
		})
		return res
	}

	expected := float64(age) * ExpectedKmPerYear
	rank := func(c listing.MileageCandidate) (inBand bool, prio int, distance float64) {
		prio = Priority(c.Source)
		if age < 1 {
			return true, prio, 0
		}
		lo := expected * (1 - bandTolerance)
		hi := expected * (1 + bandTolerance)
		v := float64(c.Value)
		return v >= lo && v <= hi, prio, math.Abs(v - expected)
	}

	sorted := make([]listing.MileageCandidate, len(valid))
	copy(sorted, valid)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, pi, di := rank(sorted[i])
		bj, pj, dj := rank(sorted[j])
		if bi != bj {
			// in-band candidates outrank out-of-band ones even when the
			// out-of-band source is nominally more reliable
			return bi
		}
		if pi != pj {
			return pi > pj
		}
		return di < dj
	})

	if len(sorted) >= 2 {
		hi := float64(sorted[0].Value)
		lo := float64(sorted[1].Value)
		if lo > hi {
			hi, lo = lo, hi
		}
		if lo > 0 && hi/lo > divergenceRatio {
			res.Flags = append(res.Flags, listing.RedFlag{
				Type:     listing.FlagMileageInconsistent,
				Severity: listing.SeverityHigh,
				Message:  "extraction sources disagree on the odometer by more than 2x",
				Details: map[string]string{
					"candidates": candidateList(sorted[:2]),
				},
			})
		}
	}

	final := sorted[0].Value
	res.Final = &final
	res.Confidence = confidence(valid, year)
	res.Notes = append(res.Notes, fmt.Sprintf("selected %d km from %s", final, sorted[0].Source))
	return res
}

// confidence is high only when exactly one source class produced a single
// coherent value; medium otherwise; low when no year is available to sanity
// check against.
func confidence(valid []listing.MileageCandidate, year int) listing.Confidence {
	if year <= 0 {
		return listing.ConfidenceLow
	}
	classes := map[string]struct{}{}
	values := map[int]struct{}{}
	for _, c := range valid {
		classes[c.Source] = struct{}{}
		values[c.Value] = struct{}{}
	}
	if len(classes) == 1 && len(values) == 1 {
		return listing.ConfidenceHigh
	}
	return listing.ConfidenceMedium
}

func candidateList(cs []listing.MileageCandidate) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("%d km (%s)", c.Value, c.Source))
	}
	return strings.Join(parts, ", ")
}
