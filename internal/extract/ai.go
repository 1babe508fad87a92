package extract

import (
	"context"

	"github.com/vigiauto/vigiauto/internal/aix"
	"github.com/vigiauto/vigiauto/internal/listing"
)

// AI delegates to the model-backed extractor. It runs last: the page
// resisted every cheaper strategy before a token is spent on it.
type AI struct {
	Extractor aix.Extractor
}

func (AI) Name() string { return "ai" }

func (a AI) Extract(ctx context.Context, in Input) ([]listing.Fragment, error) {
	if a.Extractor == nil || in.Page == nil || len(in.Page.Body) == 0 {
		return nil, nil
	}
	return a.Extractor.Extract(ctx, string(in.Page.Body), in.Query)
}
