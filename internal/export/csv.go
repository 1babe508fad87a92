// Package export writes search listings to flat files for spreadsheets
// and downstream tooling.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// headers defines the CSV column order.
var headers = []string{
	"score",
	"title",
	"price_eur",
	"year",
	"mileage_km",
	"mileage_confidence",
	"fuel",
	"gearbox",
	"city",
	"source",
	"strategy",
	"red_flags",
	"url",
}

// WriteCSV renders the listings, one row each, ordered as given.
func WriteCSV(w io.Writer, listings []listing.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range listings {
		if err := cw.Write(row(l)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", l.URL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(l listing.Listing) []string {
	return []string{
		strconv.Itoa(l.Score),
		l.Title,
		intOrEmpty(l.Price),
		intOrEmpty(l.Year),
		intOrEmpty(l.Mileage),
		string(l.MileageConfidence),
		l.Fuel,
		l.Gearbox,
		l.City,
		l.Source,
		l.Strategy,
		flagList(l.RedFlags),
		l.URL,
	}
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// flagList renders flags as "type:severity" joined with ";", keeping the
// cell greppable.
func flagList(flags []listing.RedFlag) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f.Type) + ":" + string(f.Severity)
	}
	return strings.Join(parts, ";")
}
