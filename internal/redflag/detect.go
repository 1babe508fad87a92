// Package redflag evaluates cross-field anomaly rules against a normalized
// listing. Rules are independent; a listing may accumulate several flags.
// Severities are fixed per rule so flag semantics stay predictable.
package redflag

import (
	"fmt"
	"time"

	"github.com/vigiauto/vigiauto/internal/lexical"
	"github.com/vigiauto/vigiauto/internal/listing"
)

const (
	// usageMileage/usageAge: above 300,000 km in under 5 years implies more
	// than 60,000 km/year, outside any plausible private usage.
	usageMileage = 300_000
	usageAgeMax  = 5
	// underpriceRatio: a price below 75% of the market minimum for
	// comparable listings suggests fraud or a hidden major defect.
	underpriceRatio = 0.75
)

// Market is the price band computed from comparable listings in the current
// result set. Min is zero when too few comparables exist.
type Market struct {
	Min float64
	Avg float64
	Max float64
	N   int
}

// Detector inspects one listing and returns a flag, or nil.
type Detector func(l *listing.Listing, m Market) *listing.RedFlag

// DefaultDetectors returns the standard rule set.
func DefaultDetectors() []Detector {
	return []Detector{
		detectExcessiveUsage,
		detectUnderpriced,
		detectMissingInspection,
		detectBrandConflict,
	}
}

// Detect runs every detector and returns the accumulated flags. Flags
// already attached to the listing (e.g. by the mileage resolver) are not
// touched; the caller appends these to them.
func Detect(l *listing.Listing, m Market) []listing.RedFlag {
	return Run(l, m, DefaultDetectors())
}

// Run applies the given detectors in order and collects the flags raised.
func Run(l *listing.Listing, m Market, detectors []Detector) []listing.RedFlag {
	if l == nil {
		return nil
	}
	var flags []listing.RedFlag
	for _, d := range detectors {
		if f := d(l, m); f != nil {
			flags = append(flags, *f)
		}
	}
	return flags
}

func vehicleAge(l *listing.Listing) int {
	if l.Year == nil {
		return -1
	}
	return time.Now().Year() - *l.Year
}

func detectExcessiveUsage(l *listing.Listing, _ Market) *listing.RedFlag {
	if l.Mileage == nil {
		return nil
	}
	age := vehicleAge(l)
	if age < 0 || age >= usageAgeMax {
		return nil
	}
	if *l.Mileage > usageMileage {
		return &listing.RedFlag{
			Type:     listing.FlagMileageInconsistent,
			Severity: listing.SeverityHigh,
			Message:  fmt.Sprintf("%d km in %d year(s) implies implausible annual usage", *l.Mileage, age),
			Details: map[string]string{
				"mileage": fmt.Sprintf("%d", *l.Mileage),
				"age":     fmt.Sprintf("%d", age),
			},
		}
	}
	return nil
}

func detectUnderpriced(l *listing.Listing, m Market) *listing.RedFlag {
	if l.Price == nil || m.Min <= 0 || m.N < 2 {
		return nil
	}
	if float64(*l.Price) < underpriceRatio*m.Min {
		return &listing.RedFlag{
			Type:     listing.FlagPriceTooLow,
			Severity: listing.SeverityHigh,
			Message:  fmt.Sprintf("price %d € is below 75%% of the market minimum (%.0f €)", *l.Price, m.Min),
			Details: map[string]string{
				"price":     fmt.Sprintf("%d", *l.Price),
				"marketMin": fmt.Sprintf("%.0f", m.Min),
			},
		}
	}
	return nil
}

// detectMissingInspection only fires on an explicit negative statement.
// Saying nothing about the inspection is not evidence of anything.
func detectMissingInspection(l *listing.Listing, _ Market) *listing.RedFlag {
	missing, sentence := lexical.InspectionMissing(l.Description)
	if !missing {
		return nil
	}
	return &listing.RedFlag{
		Type:     listing.FlagMissingInspection,
		Severity: listing.SeverityHigh,
		Message:  "seller states the roadworthiness inspection is absent or expired",
		Details:  map[string]string{"statement": sentence},
	}
}

func detectBrandConflict(l *listing.Listing, _ Market) *listing.RedFlag {
	if l.Title == "" || l.Description == "" {
		return nil
	}
	titleBrands := lexical.FindBrands(l.Title)
	if len(titleBrands) != 1 {
		return nil
	}
	descBrands := lexical.FindBrands(l.Description)
	if len(descBrands) == 0 {
		return nil
	}
	for _, b := range descBrands {
		if b == titleBrands[0] {
			return nil
		}
	}
	return &listing.RedFlag{
		Type:     listing.FlagInconsistentListing,
		Severity: listing.SeverityHigh,
		Message:  fmt.Sprintf("title names %s but the description mentions a different brand", titleBrands[0]),
		Details: map[string]string{
			"titleBrand":        titleBrands[0],
			"descriptionBrands": fmt.Sprintf("%v", descBrands),
		},
	}
}
