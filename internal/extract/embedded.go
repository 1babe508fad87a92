package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/mileage"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// Embedded reads the JSON state modern marketplaces ship inside their
// server-rendered pages: a named script blob first, JSON-LD second.
type Embedded struct{}

func (Embedded) Name() string { return "embedded" }

func (e Embedded) Extract(_ context.Context, in Input) ([]listing.Fragment, error) {
	if in.Page == nil || len(in.Page.Body) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Page.Body))
	if err != nil {
		return nil, err
	}
	if in.Site.EmbeddedObject != "" {
		if frags := e.fromState(doc, string(in.Page.Body), in.Site); len(frags) > 0 {
			return frags, nil
		}
	}
	return e.fromJSONLD(doc), nil
}

// fromState locates the named state object. Next.js-style blobs live in
// a script tag with the object name as id; window assignments are found
// by scanning for "name =" and taking the balanced JSON value.
func (Embedded) fromState(doc *goquery.Document, body string, site *sites.Site) []listing.Fragment {
	name, path, fields := site.EmbeddedObject, site.EmbeddedPath, site.EmbeddedFields

	var raw string
	if sel := doc.Find("script#" + cssEscape(name)); sel.Length() > 0 {
		raw = sel.First().Text()
	} else if i := strings.Index(body, name); i >= 0 {
		rest := body[i+len(name):]
		if j := strings.IndexAny(rest, "={["); j >= 0 && rest[j] == '=' {
			raw = balancedJSON(rest[j+1:])
		}
	}
	if raw == "" {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	arr := findAdArray(v, path)
	var out []listing.Fragment
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := fragmentFromObject(obj, fields); ok {
			out = append(out, f)
		}
	}
	return out
}

// fromJSONLD walks application/ld+json blocks looking for ItemList
// entries and lone vehicle/product objects.
func (Embedded) fromJSONLD(doc *goquery.Document) []listing.Fragment {
	var out []listing.Fragment
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		for _, obj := range ldObjects(v) {
			if f, ok := ldFragment(obj); ok {
				out = append(out, f)
			}
		}
	})
	return out
}

// ldObjects flattens one JSON-LD document into candidate ad objects.
func ldObjects(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			out = append(out, ldObjects(el)...)
		}
	case map[string]any:
		typ, _ := t["@type"].(string)
		switch typ {
		case "ItemList":
			if elems, ok := t["itemListElement"].([]any); ok {
				for _, el := range elems {
					le, ok := el.(map[string]any)
					if !ok {
						continue
					}
					if item, ok := le["item"].(map[string]any); ok {
						out = append(out, item)
					} else {
						out = append(out, le)
					}
				}
			}
		case "Car", "Vehicle", "Product":
			out = append(out, t)
		}
	}
	return out
}

func ldFragment(obj map[string]any) (listing.Fragment, bool) {
	f := listing.Fragment{
		Title:       stringifyJSON(obj["name"]),
		URL:         stringifyJSON(obj["url"]),
		ImageURL:    stringifyJSON(obj["image"]),
		Description: stringifyJSON(obj["description"]),
	}
	if offers, ok := obj["offers"].(map[string]any); ok {
		f.PriceText = stringifyJSON(offers["price"])
	}
	if f.PriceText == "" {
		f.PriceText = stringifyJSON(obj["price"])
	}
	if odo, ok := obj["mileageFromOdometer"].(map[string]any); ok {
		if s := stringifyJSON(odo["value"]); s != "" {
			f.Mileages = append(f.Mileages, listing.RawField{Raw: s, Source: mileage.SourceStructured})
		}
	}
	if s := stringifyJSON(obj["productionDate"]); s != "" {
		f.YearText = s
	} else if s := stringifyJSON(obj["vehicleModelDate"]); s != "" {
		f.YearText = s
	}
	if f.Title == "" && f.URL == "" {
		return listing.Fragment{}, false
	}
	return f, true
}

// balancedJSON returns the first balanced {...} or [...] value in s,
// string-literal and escape aware.
func balancedJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open, closing := s[start], byte('}')
	if open == '[' {
		closing = ']'
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// cssEscape quotes the characters goquery's selector parser would choke
// on in a script id like "window.__STATE__".
func cssEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
