// Package storage holds file-backed sinks for ledger rows.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"restakeRates/internal/ledger"
	"restakeRates/internal/model"
)

var _ ledger.Sink = (*JsonlStorage)(nil)

// JsonlStorage appends ledger rows to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

// NewJsonlStorage creates a sink appending to the file at path.
func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutRateEntries appends entries as JSON lines.
func (s *JsonlStorage) PutRateEntries(entries []model.RateEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal rate entry %s: %w", entry.RestakingToken, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write rate entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}

	return nil
}
