package memory

import (
	"context"
	"fmt"
	"sync"

	"summa/internal/core"
)

// Store is an in-memory sheet used in tests and when no Google
// credentials are configured.
type Store struct {
	mu    sync.Mutex
	items []core.Invoice
}

func New() *Store {
	return &Store{}
}

// Append stores the invoice and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, inv core.Invoice) (string, error) {
	if err := inv.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, inv)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Appended returns a copy of everything written so far.
func (s *Store) Appended() []core.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Invoice(nil), s.items...)
}
