package memory

import (
	"context"
	"fmt"
	"sync"

	"finly/internal/core"
)

// Store is an in-memory ledger used in tests and when no spreadsheet is
// configured.
type Store struct {
	mu    sync.Mutex
	items []core.Purchase
}

func New() *Store {
	return &Store{}
}

// Append stores the purchase and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, p core.Purchase) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, p)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// ListMonth returns the stored purchases dated in the given month.
func (s *Store) ListMonth(_ context.Context, year int, month int) ([]core.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Purchase
	for _, p := range s.items {
		if p.Date.Year() == year && int(p.Date.Month()) == month {
			out = append(out, p)
		}
	}
	return out, nil
}

// Len reports how many purchases were appended.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
