package extract

import (
	"strconv"
	"strings"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/mileage"
)

// fieldAliases are tried when a site does not map a field explicitly.
// Keys are our canonical field names; values are JSON keys seen across
// marketplace payloads.
var fieldAliases = map[string][]string{
	"title":       {"title", "subject", "name", "label"},
	"price":       {"price", "priceText", "amount", "sellingPrice"},
	"year":        {"year", "regdate", "firstRegistrationYear", "modelYear"},
	"mileage":     {"mileage", "km", "kilometers", "odometer"},
	"url":         {"url", "link", "href", "permalink"},
	"image":       {"image", "photoUrl", "thumb_url", "imageUrl", "picture"},
	"city":        {"city", "location", "town"},
	"description": {"description", "body", "text"},
}

// stringifyJSON renders a JSON leaf as text. Numbers keep integer form
// when integral; nested objects yield their value/text member.
func stringifyJSON(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		for _, k := range []string{"value", "amount", "text", "raw"} {
			if inner, ok := t[k]; ok {
				return stringifyJSON(inner)
			}
		}
	}
	return ""
}

// jsonField resolves one canonical field from an object, preferring the
// site's explicit mapping over the alias table.
func jsonField(obj map[string]any, field string, mapping map[string]string) string {
	if mapping != nil {
		if key, ok := mapping[field]; ok {
			if v, ok := obj[key]; ok {
				if s := stringifyJSON(v); s != "" {
					return s
				}
			}
		}
	}
	for _, key := range fieldAliases[field] {
		if v, ok := obj[key]; ok {
			if s := stringifyJSON(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// fragmentFromObject maps one JSON ad object to a fragment. Objects with
// neither title nor url are not ads and are dropped here.
func fragmentFromObject(obj map[string]any, mapping map[string]string) (listing.Fragment, bool) {
	f := listing.Fragment{
		Title:       jsonField(obj, "title", mapping),
		PriceText:   jsonField(obj, "price", mapping),
		YearText:    jsonField(obj, "year", mapping),
		URL:         jsonField(obj, "url", mapping),
		ImageURL:    jsonField(obj, "image", mapping),
		City:        jsonField(obj, "city", mapping),
		Description: jsonField(obj, "description", mapping),
	}
	if km := jsonField(obj, "mileage", mapping); km != "" {
		f.Mileages = append(f.Mileages, listing.RawField{Raw: km, Source: mileage.SourceStructured})
	}
	if f.Title == "" && f.URL == "" {
		return listing.Fragment{}, false
	}
	return f, true
}

// findAdArray locates the array of ad objects inside decoded JSON,
// walking the given path first and then trying well-known wrapper keys.
func findAdArray(v any, path []string) []any {
	if len(path) > 0 {
		cur := v
		for _, step := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = obj[step]
		}
		if arr, ok := cur.([]any); ok {
			return arr
		}
	}
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		for _, key := range []string{"listings", "ads", "results", "items", "data", "hits"} {
			if arr := findAdArray(t[key], nil); arr != nil {
				return arr
			}
		}
	}
	return nil
}
