package memory

import (
	"context"
	"sync"

	"github.com/ariefw/go-shop-saga/internal/inventory"
)

// InventoryStore is the mutex-guarded in-memory counterpart of the
// Postgres option store. The single mutex stands in for row locks: no
// interleaved read-modify-write is observable.
type InventoryStore struct {
	mu      sync.Mutex
	options map[string]*inventory.Option
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{options: make(map[string]*inventory.Option)}
}

func (s *InventoryStore) Put(o *inventory.Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[o.ID] = cloneOption(o)
}

func (s *InventoryStore) Get(ctx context.Context, optionID string) (*inventory.Option, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[optionID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return cloneOption(o), nil
}

func (s *InventoryStore) Reserve(ctx context.Context, lines []inventory.Line) error {
	return s.mutate(ctx, lines, (*inventory.Option).Reserve)
}

func (s *InventoryStore) Confirm(ctx context.Context, lines []inventory.Line) error {
	return s.mutate(ctx, lines, (*inventory.Option).Confirm)
}

func (s *InventoryStore) Release(ctx context.Context, lines []inventory.Line) error {
	return s.mutate(ctx, lines, (*inventory.Option).Release)
}

func (s *InventoryStore) Restore(ctx context.Context, lines []inventory.Line) error {
	return s.mutate(ctx, lines, (*inventory.Option).Restore)
}

func (s *InventoryStore) mutate(ctx context.Context, lines []inventory.Line, op func(*inventory.Option, int) error) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(lines, op)
}

// mutateLocked applies op to clones first so a mid-batch failure leaves
// every counter untouched. Caller holds s.mu.
func (s *InventoryStore) mutateLocked(lines []inventory.Line, op func(*inventory.Option, int) error) error {
	staged := make(map[string]*inventory.Option, len(lines))
	for _, ln := range lines {
		o, ok := staged[ln.OptionID]
		if !ok {
			cur, found := s.options[ln.OptionID]
			if !found {
				return inventory.ErrNotFound
			}
			o = cloneOption(cur)
			staged[ln.OptionID] = o
		}
		if err := op(o, ln.Qty); err != nil {
			return err
		}
	}
	for id, o := range staged {
		s.options[id] = o
	}
	return nil
}

func cloneOption(o *inventory.Option) *inventory.Option {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
