// Package orders holds the order and saved card stores the payment
// orchestrator runs against.
package orders

import (
	"context"
	"fmt"
	"sync"

	"paygate/internal/common/database"
	"paygate/internal/payment/domain"
)

// MemoryStore keeps orders in process. Every read returns a copy.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	notes  map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*domain.Order),
		notes:  make(map[string][]string),
	}
}

// Create inserts an order.
func (s *MemoryStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", order.ID, database.ErrConflict)
	}
	o := order.Clone()
	if o.Status == "" {
		o.Status = domain.StatusPending
	}
	o.Version = 1
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) get(id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return o, nil
}

// Get returns a copy of the order.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

// SetStatus moves the order to status.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.get(id)
	if err != nil {
		return err
	}
	o.Status = status
	o.Version++
	return nil
}

// SetMeta writes values into the order's metadata.
func (s *MemoryStore) SetMeta(_ context.Context, id string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.get(id)
	if err != nil {
		return err
	}
	for k, v := range values {
		o.Metadata[k] = v
	}
	o.Version++
	return nil
}

// CompareAndSetMeta writes newValue if key holds oldValue.
func (s *MemoryStore) CompareAndSetMeta(_ context.Context, id, key, oldValue, newValue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.get(id)
	if err != nil {
		return false, err
	}
	if o.Metadata[key] != oldValue {
		return false, nil
	}
	o.Metadata[key] = newValue
	o.Version++
	return true, nil
}

// AddNote appends an audit note.
func (s *MemoryStore) AddNote(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(id); err != nil {
		return err
	}
	s.notes[id] = append(s.notes[id], note)
	return nil
}

// Notes returns the order's notes, oldest first.
func (s *MemoryStore) Notes(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(id); err != nil {
		return nil, err
	}
	return append([]string(nil), s.notes[id]...), nil
}

// Settle marks the order paid unless it already is.
func (s *MemoryStore) Settle(_ context.Context, id string, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.get(id)
	if err != nil {
		return err
	}
	if o.Paid() {
		return domain.ErrAlreadyPaid
	}

	o.Metadata[domain.MetaOrderPaid] = domain.FlagOn
	o.Metadata[domain.MetaOrderCaptured] = captureFlag(st.Captured)
	o.Metadata[domain.MetaPaymentClaim] = ""
	o.TransactionID = st.TransactionID
	o.Status = domain.StatusProcessing
	o.Version++
	if st.Note != "" {
		s.notes[id] = append(s.notes[id], st.Note)
	}
	return nil
}

func captureFlag(captured bool) string {
	if captured {
		return domain.FlagOn
	}
	return domain.FlagOff
}
