// Package score computes the 0-100 trustworthiness/match score of a
// listing, and the independent risk score derived from its red flags.
// All adjustments are bounded and commutative; evaluation order never
// changes the outcome.
package score

import (
	"fmt"
	"math"
	"time"

	"github.com/vigiauto/vigiauto/internal/lexical"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/redflag"
)

const (
	baseScore = 50

	pricePerYearLow   = 5_000
	pricePerYearHigh  = 15_000
	pricePerYearCheap = 2_000

	kmPerYearLow     = 10_000
	kmPerYearHigh    = 20_000
	kmPerYearExtreme = 30_000
	kmPerYearIdle    = 5_000

	marketBelowRatio = 0.90
	marketAboveRatio = 1.20

	distressPenalty    = 5
	distressPenaltyCap = 15

	// blend weights when an external relevancy score is present
	heuristicWeight = 0.7
	externalWeight  = 0.3

	// comparables: same model year, odometer within this distance
	comparableMileageWindow = 25_000
	minComparables          = 2
)

// Outcome carries the final score and the human-readable reasons behind it.
type Outcome struct {
	Score   int
	Reasons []string
}

// Comparables computes the market band of listings comparable to l (same
// year, similar mileage) within the current result set, excluding l itself.
func Comparables(l *listing.Listing, all []listing.Listing) redflag.Market {
	var m redflag.Market
	if l.Year == nil {
		return m
	}
	for i := range all {
		o := &all[i]
		if o.URL == l.URL || o.Price == nil || o.Year == nil || *o.Year != *l.Year {
			continue
		}
		if l.Mileage != nil && o.Mileage != nil {
			if math.Abs(float64(*o.Mileage-*l.Mileage)) > comparableMileageWindow {
				continue
			}
		}
		p := float64(*o.Price)
		if m.N == 0 || p < m.Min {
			m.Min = p
		}
		if p > m.Max {
			m.Max = p
		}
		m.Avg += p
		m.N++
	}
	if m.N > 0 {
		m.Avg /= float64(m.N)
	}
	return m
}

// Compute scores one listing against the whole result set. Red flags are a
// separate signal and deliberately do not subtract from this score.
func Compute(l *listing.Listing, all []listing.Listing) Outcome {
	out := Outcome{}
	s := float64(baseScore)

	age := 0
	if l.Year != nil {
		age = time.Now().Year() - *l.Year
		if age < 1 {
			age = 1
		}
	}

	if l.Price != nil && l.Year != nil {
		ppy := float64(*l.Price) / float64(age)
		switch {
		case ppy >= pricePerYearLow && ppy <= pricePerYearHigh:
			s += 10
			out.Reasons = append(out.Reasons, "price per year of age in the normal band")
		case ppy < pricePerYearCheap:
			s -= 15
			out.Reasons = append(out.Reasons, "price_suspect: abnormally cheap for the vehicle age")
		}
	}

	if l.Mileage != nil && l.Year != nil {
		kmy := float64(*l.Mileage) / float64(age)
		switch {
		case kmy >= kmPerYearLow && kmy <= kmPerYearHigh:
			s += 5
			out.Reasons = append(out.Reasons, "annual mileage in the normal band")
		case kmy > kmPerYearExtreme:
			s -= 10
			out.Reasons = append(out.Reasons, "annual mileage far above normal usage")
		case kmy < kmPerYearIdle && age > 3:
			s -= 5
			out.Reasons = append(out.Reasons, "suspiciously low annual mileage")
		}
	}

	if l.Price != nil {
		m := Comparables(l, all)
		if m.N >= minComparables && m.Avg > 0 {
			p := float64(*l.Price)
			switch {
			case p < marketBelowRatio*m.Avg:
				s += 15
				out.Reasons = append(out.Reasons, fmt.Sprintf("priced below the local market average (%.0f €)", m.Avg))
			case p > marketAboveRatio*m.Avg:
				s -= 10
				out.Reasons = append(out.Reasons, fmt.Sprintf("priced well above the local market average (%.0f €)", m.Avg))
			}
		}
	}

	switch c := l.Completeness(); {
	case c >= 80:
		s += 10
		out.Reasons = append(out.Reasons, "well documented listing")
	case c < 50:
		s -= 10
		out.Reasons = append(out.Reasons, "listing is missing key fields")
	}

	penalty := 0
	for _, m := range lexical.ScanTerms(l.Title, lexical.DistressTerms) {
		penalty += distressPenalty * m.Count
	}
	if penalty > distressPenaltyCap {
		penalty = distressPenaltyCap
	}
	if penalty > 0 {
		s -= float64(penalty)
		out.Reasons = append(out.Reasons, "distress vocabulary in the title")
	}
	if pro := lexical.ScanTerms(l.Title, lexical.ProTerms); len(pro) > 0 {
		// noted, never penalized
		out.Reasons = append(out.Reasons, "professional seller vocabulary")
	}

	if l.BaseScore != nil {
		s = heuristicWeight*s + externalWeight**l.BaseScore
		out.Reasons = append(out.Reasons, "blended with external relevancy score")
	}

	out.Score = clamp(int(math.Round(s)))
	return out
}

// Risk derives the 0-100 risk score from the listing's red flags. It is an
// independent axis: any critical flag forces a floor of 80, two or more
// high flags force a floor of 75.
func Risk(flags []listing.RedFlag) int {
	risk := 0
	high, critical := 0, 0
	for _, f := range flags {
		switch f.Severity {
		case listing.SeverityCritical:
			critical++
			risk += 35
		case listing.SeverityHigh:
			high++
			risk += 20
		}
	}
	if critical > 0 && risk < 80 {
		risk = 80
	}
	if high >= 2 && risk < 75 {
		risk = 75
	}
	return clamp(risk)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
