package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefw/go-shop-saga/internal/inventory"
	"github.com/ariefw/go-shop-saga/internal/orders"
)

// OrderStore keeps orders and their item snapshots in memory. It shares
// the inventory store so Create and ExpireWithRelease can touch stock
// counters the way the single-transaction Postgres store does.
type OrderStore struct {
	mu     sync.Mutex
	inv    *InventoryStore
	orders map[string]*orders.Order
	items  map[string][]orders.Item
}

func NewOrderStore(inv *InventoryStore) *OrderStore {
	return &OrderStore{
		inv:    inv,
		orders: make(map[string]*orders.Order),
		items:  make(map[string][]orders.Item),
	}
}

func (s *OrderStore) Create(ctx context.Context, userID, couponID string, inputs []orders.ItemInput) (*orders.Order, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv.mu.Lock()
	defer s.inv.mu.Unlock()

	orderID := uuid.NewString()
	items := make([]orders.Item, 0, len(inputs))
	lines := make([]inventory.Line, 0, len(inputs))
	for _, in := range inputs {
		opt, ok := s.inv.options[in.OptionID]
		if !ok {
			return nil, inventory.ErrNotFound
		}
		it, err := orders.NewItem(orderID, in.OptionID, opt.Name, opt.PriceCents, in.Qty)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
		lines = append(lines, inventory.Line{OptionID: in.OptionID, Qty: in.Qty})
	}
	if err := s.inv.mutateLocked(lines, (*inventory.Option).Reserve); err != nil {
		return nil, err
	}

	o, err := orders.New(orderID, userID, couponID, items, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.orders[o.ID] = cloneOrder(o)
	s.items[o.ID] = items
	return o, nil
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) Items(ctx context.Context, orderID string) ([]orders.Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	out := make([]orders.Item, len(items))
	copy(out, items)
	return out, nil
}

func (s *OrderStore) UpdateGuarded(ctx context.Context, o *orders.Order, expect orders.Status) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return orders.ErrNotFound
	}
	if cur.Status != expect {
		return orders.ErrStatusChanged
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *OrderStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.Status == orders.StatusPending && !o.ExpiredAt.After(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *OrderStore) ExpireWithRelease(ctx context.Context, orderID string, now time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	if o.Status != orders.StatusPending {
		return orders.ErrStatusChanged
	}
	next := cloneOrder(o)
	if err := next.Expire(now); err != nil {
		return err
	}

	lines := make([]inventory.Line, 0, len(s.items[orderID]))
	for _, it := range s.items[orderID] {
		lines = append(lines, inventory.Line{OptionID: it.OptionID, Qty: it.Qty})
	}
	s.inv.mu.Lock()
	err := s.inv.mutateLocked(lines, (*inventory.Option).Release)
	s.inv.mu.Unlock()
	if err != nil {
		return err
	}

	s.orders[orderID] = next
	return nil
}

func cloneOrder(o *orders.Order) *orders.Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
