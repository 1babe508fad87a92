// Package sqlite stores search records in a local SQLite database, the
// default backend for single-machine use.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/storage"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_records (
	id TEXT PRIMARY KEY,
	brand TEXT NOT NULL,
	model TEXT,
	query TEXT NOT NULL,
	result TEXT NOT NULL,
	total_items INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_records_brand ON search_records(brand);
CREATE INDEX IF NOT EXISTS idx_search_records_created ON search_records(created_at);
`

// New opens (and if needed initializes) a SQLite-backed record store.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.SearchRecord) error {
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
	_, err = b.db.ExecContext(ctx, `
	INSERT INTO search_records (id, brand, model, query, result, total_items, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		strings.ToLower(rec.Query.Brand),
		strings.ToLower(rec.Query.Model),
		string(queryJSON),
		string(resultJSON),
		total,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search record: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchRecord, error) {
	query := `SELECT id, query, result, duration_ms, created_at FROM search_records WHERE 1=1`
	args := []any{}

	if filter.Brand != "" {
		query += ` AND brand = ?`
		args = append(args, strings.ToLower(filter.Brand))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search records: %w", err)
	}
	defer rows.Close()

	var out []*storage.SearchRecord
	for rows.Next() {
		var rec storage.SearchRecord
		var queryJSON, resultJSON string
		var durationMs int64
		if err := rows.Scan(&rec.ID, &queryJSON, &resultJSON, &durationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		if err := json.Unmarshal([]byte(queryJSON), &rec.Query); err != nil {
			return nil, fmt.Errorf("decode query of record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
