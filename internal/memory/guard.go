package memory

import (
	"context"
	"sync"
)

// Guard is the in-memory payment guard: at most one in-flight saga per
// order.
type Guard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewGuard() *Guard {
	return &Guard{held: make(map[string]bool)}
}

func (g *Guard) Acquire(ctx context.Context, orderID string) (bool, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[orderID] {
		return false, nil
	}
	g.held[orderID] = true
	return true, nil
}

func (g *Guard) Release(ctx context.Context, orderID string) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, orderID)
}
