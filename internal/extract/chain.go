// Package extract turns fetched pages into listing fragments and then
// into validated listings. Extraction is a layered chain: structured
// provider data, embedded page state, rendered markup, then AI-assisted
// reading. The first strategy that yields at least one fragment wins;
// later strategies never run for that page.
package extract

import (
	"context"
	"log/slog"

	"github.com/vigiauto/vigiauto/internal/aix"
	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/sites"
)

// Input is everything one extraction attempt works from.
type Input struct {
	Site  *sites.Site
	Query listing.Query
	Page  *fetch.Result
}

// Strategy is one extraction tier. A strategy that does not apply to the
// given page returns (nil, nil); errors are advisory and never abort the
// chain.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) ([]listing.Fragment, error)
}

// Chain runs strategies in declining-structure order.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain builds the default chain. The AI extractor may be nil, in
// which case the last tier is absent.
func NewChain(ai aix.Extractor, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	s := []Strategy{Structured{}, Embedded{}, Markup{}}
	if ai != nil {
		s = append(s, AI{Extractor: ai})
	}
	return &Chain{strategies: s, logger: logger}
}

// NewChainWith builds a chain from an explicit strategy list, in order.
func NewChainWith(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Run attempts each strategy until one produces fragments. It returns
// the fragments and the winning strategy name. An exhausted chain is not
// an error: the page simply had nothing extractable.
func (c *Chain) Run(ctx context.Context, in Input) ([]listing.Fragment, string, error) {
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		frags, err := s.Extract(ctx, in)
		if err != nil {
			c.logger.Debug("extraction strategy failed",
				"strategy", s.Name(), "site", in.Site.Name, "error", err)
			continue
		}
		if len(frags) > 0 {
			for i := range frags {
				if frags[i].Strategy == "" {
					frags[i].Strategy = s.Name()
				}
			}
			return frags, s.Name(), nil
		}
	}
	return nil, "", nil
}
