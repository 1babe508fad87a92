package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// Structured maps provider-parsed JSON straight to fragments. It only
// applies when the fetch layer returned structured data, which requires
// a structured-capable fetcher.
type Structured struct{}

func (Structured) Name() string { return "structured" }

func (s Structured) Extract(_ context.Context, in Input) ([]listing.Fragment, error) {
	if in.Page == nil || len(in.Page.Structured) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(in.Page.Structured, &v); err != nil {
		return nil, fmt.Errorf("structured payload: %w", err)
	}
	arr := findAdArray(v, in.Site.EmbeddedPath)
	if arr == nil {
		return nil, nil
	}
	var out []listing.Fragment
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := fragmentFromObject(obj, in.Site.EmbeddedFields); ok {
			out = append(out, f)
		}
	}
	return out, nil
}
