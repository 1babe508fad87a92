// Package jsonbackend stores search records as newline-delimited JSON,
// handy for piping runs into jq or archiving them without a database.
package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/vigiauto/vigiauto/internal/storage"
)

var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New opens (appending) or creates the NDJSON record file.
func New(path string) (storage.Backend, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open record file %q: %w", path, err)
	}
	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(_ context.Context, rec *storage.SearchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode search record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append search record: %w", err)
	}
	return nil
}

func (b *jsonBackend) Query(_ context.Context, filter storage.Filter) ([]*storage.SearchRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind record file: %w", err)
	}

	var all []*storage.SearchRecord
	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec storage.SearchRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode search record: %w", err)
		}
		if filter.Brand != "" && !strings.EqualFold(filter.Brand, rec.Query.Brand) {
			continue
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}
		all = append(all, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil, nil
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	// Restore append semantics for the next Save.
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("reposition record file: %w", err)
	}
	return all, nil
}

func (b *jsonBackend) Close() error {
	return b.file.Close()
}
