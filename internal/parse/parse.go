// Package parse converts locale-formatted listing text into typed values.
// All functions are pure; French number, date and vocabulary conventions
// are the reference ("12 500 €", "120 000 km", "Boîte automatique").
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldASCII lowercases the input and strips diacritics ("Boîte" -> "boite").
func FoldASCII(s string) string {
	folded, _, err := transform.String(asciiFolder, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// stripNumber keeps the leading numeric run of a French-formatted value,
// tolerating regular, non-breaking and narrow non-breaking spaces as
// thousands separators, as well as dots ("12.500").
func stripNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	var b strings.Builder
	seen := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seen = true
		case r == ' ' || r == ' ' || r == ' ' || r == '.':
			if !seen {
				continue
			}
			// separator inside the number, keep scanning
		case r == ',':
			// decimal comma: the integer part is complete
			if seen {
				return b.String(), true
			}
		default:
			if seen {
				return b.String(), true
			}
		}
	}
	return b.String(), seen
}

// Price parses a French-formatted price ("12 500 €", "9.990€", "15 000")
// into whole euros. Returns false when no numeric value is present.
func Price(s string) (int, bool) {
	digits, ok := stripNumber(s)
	if !ok || digits == "" {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Mileage parses an odometer reading ("120 000 km", "85000km") into
// kilometers. Returns false when no numeric value is present.
func Mileage(s string) (int, bool) {
	digits, ok := stripNumber(s)
	if !ok || digits == "" {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

var yearRe = regexp.MustCompile(`\b(19[5-9]\d|20\d\d)\b`)

// Year extracts a plausible model year (1950 to next year) from free text.
func Year(s string) (int, bool) {
	m := yearRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, _ := strconv.Atoi(m)
	if v > time.Now().Year()+1 {
		return 0, false
	}
	return v, true
}

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "fevrier": time.February, "mars": time.March,
	"avril": time.April, "mai": time.May, "juin": time.June,
	"juillet": time.July, "aout": time.August, "septembre": time.September,
	"octobre": time.October, "novembre": time.November, "decembre": time.December,
}

var (
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	wordDateRe    = regexp.MustCompile(`\b(\d{1,2})(?:er)?\s+([a-z]+)\s+(\d{4})\b`)
)

// Date parses French listing dates: "12/03/2024" (day first) or
// "12 mars 2024". The result is midnight UTC.
func Date(s string) (time.Time, bool) {
	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	folded := FoldASCII(s)
	if m := wordDateRe.FindStringSubmatch(folded); m != nil {
		if month, ok := frenchMonths[m[2]]; ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			if day >= 1 && day <= 31 {
				return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// Fuel canonicalizes French fuel vocabulary. Unrecognized input returns "".
func Fuel(s string) string {
	f := FoldASCII(s)
	switch {
	case strings.Contains(f, "essence"):
		return "essence"
	case strings.Contains(f, "diesel") || strings.Contains(f, "gazole"):
		return "diesel"
	case strings.Contains(f, "hybride rechargeable"):
		return "hybride_rechargeable"
	case strings.Contains(f, "hybride"):
		return "hybride"
	case strings.Contains(f, "electrique"):
		return "electrique"
	case strings.Contains(f, "gpl"):
		return "gpl"
	case strings.Contains(f, "ethanol") || strings.Contains(f, "e85"):
		return "ethanol"
	}
	return ""
}

// Gearbox canonicalizes French gearbox vocabulary. Unrecognized input
// returns "".
func Gearbox(s string) string {
	g := FoldASCII(s)
	switch {
	case strings.Contains(g, "auto"):
		return "automatique"
	case strings.Contains(g, "manuelle") || strings.Contains(g, "mecanique"):
		return "manuelle"
	}
	return ""
}

var mileageInTextRe = regexp.MustCompile(`(?i)(\d{1,3}(?:[\s  .]\d{3})+|\d{3,7})\s*(?:km|kms|kilometres|kilomètres)`)

// MileageInText scans free text for "<number> km" occurrences and returns
// the raw matches, useful as a last-resort odometer source.
func MileageInText(s string) []string {
	ms := mileageInTextRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m[1])
	}
	return out
}
