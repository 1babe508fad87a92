// Package postgres stores search records in PostgreSQL for shared or
// long-lived deployments.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/storage"
)

var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_records (
	id TEXT PRIMARY KEY,
	brand TEXT NOT NULL,
	model TEXT,
	query JSONB NOT NULL,
	result JSONB NOT NULL,
	total_items INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_records_brand ON search_records(brand);
CREATE INDEX IF NOT EXISTS idx_search_records_created ON search_records(created_at);
`

// New connects, pings and initializes the record store.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.SearchRecord) error {
	queryJSON, err := json.Marshal(rec.Query)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	total := 0
	if rec.Result != nil {
		total = rec.Result.Stats.TotalItems
	}
	_, err = b.pool.Exec(ctx, `
	INSERT INTO search_records (id, brand, model, query, result, total_items, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		strings.ToLower(rec.Query.Brand),
		strings.ToLower(rec.Query.Model),
		queryJSON,
		resultJSON,
		total,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search record: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchRecord, error) {
	query := `SELECT id, query, result, duration_ms, created_at FROM search_records WHERE 1=1`
	args := []any{}

	if filter.Brand != "" {
		args = append(args, strings.ToLower(filter.Brand))
		query += fmt.Sprintf(` AND brand = $%d`, len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search records: %w", err)
	}
	defer rows.Close()

	var out []*storage.SearchRecord
	for rows.Next() {
		var rec storage.SearchRecord
		var queryJSON, resultJSON []byte
		var durationMs int64
		if err := rows.Scan(&rec.ID, &queryJSON, &resultJSON, &durationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		if err := json.Unmarshal(queryJSON, &rec.Query); err != nil {
			return nil, fmt.Errorf("decode query of record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result of record %s: %w", rec.ID, err)
		}
		rec.Duration = listing.Millis(time.Duration(durationMs) * time.Millisecond)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search records: %w", err)
	}
	return out, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
