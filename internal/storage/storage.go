// Package storage persists search runs for later review: which query
// ran, what every site returned and how the listings scored.
package storage

import (
	"context"
	"time"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// SearchRecord is one completed search run.
type SearchRecord struct {
	ID        string          `json:"id"`
	Query     listing.Query   `json:"query"`
	Result    *listing.Result `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
	Duration  listing.Millis  `json:"durationMs"`
}

// Filter narrows a record query.
type Filter struct {
	Brand  string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend stores and retrieves search records. Query returns records
// newest first.
type Backend interface {
	Save(ctx context.Context, rec *SearchRecord) error
	Query(ctx context.Context, filter Filter) ([]*SearchRecord, error)
	Close() error
}
