package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ariefw/go-shop-saga/internal/balance"
)

// BalanceStore mimics the version-conditioned update of the Postgres
// store: Apply succeeds only when the caller's version still matches.
type BalanceStore struct {
	mu    sync.Mutex
	users map[string]*balance.User
	logs  map[string][]balance.ChangeLog
}

func NewBalanceStore() *BalanceStore {
	return &BalanceStore{
		users: make(map[string]*balance.User),
		logs:  make(map[string][]balance.ChangeLog),
	}
}

func (s *BalanceStore) Put(u *balance.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.users[u.ID] = &clone
}

func (s *BalanceStore) Get(ctx context.Context, userID string) (*balance.User, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, balance.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *BalanceStore) Apply(ctx context.Context, u *balance.User, entry *balance.ChangeLog) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return balance.ErrNotFound
	}
	if cur.Version != u.Version {
		return balance.ErrVersionConflict
	}
	cur.BalanceCents = u.BalanceCents
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	s.logs[u.ID] = append(s.logs[u.ID], *entry)
	return nil
}

func (s *BalanceStore) Logs(ctx context.Context, userID string) ([]balance.ChangeLog, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]balance.ChangeLog, len(s.logs[userID]))
	copy(out, s.logs[userID])
	return out, nil
}
