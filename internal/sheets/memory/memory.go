package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"homeledger/internal/core"
	ports "homeledger/internal/sheets"
)

// Store is an in-process LedgerExporter for tests and local runs without
// Google credentials. Rows are kept in export order.
type Store struct {
	mu    sync.Mutex
	rows  [][]string
	ids   map[int64]int
	fail  error
	calls int
}

var _ ports.LedgerExporter = (*Store)(nil)

func New() *Store {
	return &Store{ids: make(map[int64]int)}
}

// ExportTransaction stores the rendered row and returns a synthetic row
// reference. Exporting the same transaction twice overwrites its row, so a
// redelivered event never duplicates a line.
func (s *Store) ExportTransaction(_ context.Context, t core.Transaction) (string, error) {
	if t.ID <= 0 {
		return "", errors.New("memory exporter: transaction has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.fail != nil {
		return "", s.fail
	}
	row := ports.LedgerRow(t)
	if i, ok := s.ids[t.ID]; ok {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	s.ids[t.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the exported rows.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Calls counts ExportTransaction calls, failed ones included.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FailWith makes every following export return err; nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
