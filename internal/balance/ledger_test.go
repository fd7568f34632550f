package balance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ariefw/go-shop-saga/internal/balance"
	"github.com/ariefw/go-shop-saga/internal/memory"
)

func newLedger(t *testing.T, startCents int) (*balance.Ledger, *memory.BalanceStore) {
	t.Helper()
	store := memory.NewBalanceStore()
	store.Put(&balance.User{ID: "u1", BalanceCents: startCents})
	return &balance.Ledger{Store: store}, store
}

func TestChargeAndDeduct(t *testing.T) {
	l, store := newLedger(t, 0)
	ctx := context.Background()

	u, err := l.Charge(ctx, "u1", 50000, "topup-1", "top up")
	require.NoError(t, err)
	require.Equal(t, 50000, u.BalanceCents)

	u, err = l.Deduct(ctx, "u1", 40500, "order-1", "order payment")
	require.NoError(t, err)
	require.Equal(t, 9500, u.BalanceCents)

	logs, err := store.Logs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, balance.CodeSystemCharge, logs[0].Code)
	require.Equal(t, 50000, logs[0].AmountCents)
	require.Equal(t, balance.CodePayment, logs[1].Code)
	require.Equal(t, -40500, logs[1].AmountCents)
	require.Equal(t, "order-1", logs[1].RefID)
}

func TestInvalidAmounts(t *testing.T) {
	l, _ := newLedger(t, 1000)
	ctx := context.Background()

	_, err := l.Charge(ctx, "u1", 0, "", "")
	require.ErrorIs(t, err, balance.ErrInvalidAmount)
	_, err = l.Charge(ctx, "u1", -5, "", "")
	require.ErrorIs(t, err, balance.ErrInvalidAmount)
	_, err = l.Deduct(ctx, "u1", 0, "", "")
	require.ErrorIs(t, err, balance.ErrInvalidAmount)
	_, err = l.Adjust(ctx, "u1", -1, "", "")
	require.ErrorIs(t, err, balance.ErrInvalidAmount)
}

func TestDeductInsufficient(t *testing.T) {
	l, store := newLedger(t, 1000)
	ctx := context.Background()

	_, err := l.Deduct(ctx, "u1", 1001, "order-1", "")
	require.ErrorIs(t, err, balance.ErrInsufficientBalance)

	u, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1000, u.BalanceCents)

	logs, err := store.Logs(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestUnknownUser(t *testing.T) {
	l := &balance.Ledger{Store: memory.NewBalanceStore()}
	_, err := l.Charge(context.Background(), "ghost", 100, "", "")
	require.ErrorIs(t, err, balance.ErrNotFound)
}

// Concurrent mixed charges and deductions must conserve money and leave
// a log chain whose entries add up. Each worker can lose the race at
// most workers-1 times, so the retry budget is never exhausted.
func TestConcurrentApplyConserves(t *testing.T) {
	const workers = 4
	l, store := newLedger(t, 100_000)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(credit bool) {
			defer wg.Done()
			var err error
			if credit {
				_, err = l.Charge(ctx, "u1", 100, "", "")
			} else {
				_, err = l.Deduct(ctx, "u1", 100, "", "")
			}
			results <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(results)
	for err := range results {
		require.NoError(t, err)
	}

	u, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 100_000, u.BalanceCents)
	require.Equal(t, int64(workers), u.Version)

	logs, err := store.Logs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, workers)
	sum := 0
	for _, e := range logs {
		require.Equal(t, e.BeforeCents+e.AmountCents, e.AfterCents)
		sum += e.AmountCents
	}
	require.Zero(t, sum)
}

// conflictStore always reports a stale version, so the retry loop must
// run out of attempts.
type conflictStore struct {
	gets int
}

func (s *conflictStore) Get(ctx context.Context, userID string) (*balance.User, error) {
	s.gets++
	return &balance.User{ID: userID, BalanceCents: 1000}, nil
}

func (s *conflictStore) Apply(ctx context.Context, u *balance.User, entry *balance.ChangeLog) error {
	return balance.ErrVersionConflict
}

func (s *conflictStore) Logs(ctx context.Context, userID string) ([]balance.ChangeLog, error) {
	return nil, nil
}

func TestRetryExhaustion(t *testing.T) {
	store := &conflictStore{}
	l := &balance.Ledger{Store: store}

	_, err := l.Deduct(context.Background(), "u1", 100, "order-1", "")
	require.ErrorIs(t, err, balance.ErrVersionConflict)
	require.Equal(t, 5, store.gets)
}

func TestChangeLogConstruction(t *testing.T) {
	_, err := balance.NewChangeLog("id", "u1", 0, 100, 100, balance.CodeAdjust, "", "")
	require.ErrorIs(t, err, balance.ErrInvalidAmount)

	_, err = balance.NewChangeLog("id", "u1", 50, 100, 140, balance.CodeAdjust, "", "")
	require.ErrorIs(t, err, balance.ErrBrokenLog)

	e, err := balance.NewChangeLog("id", "u1", -50, 100, 50, balance.CodePayment, "note", "ref")
	require.NoError(t, err)
	require.Equal(t, 50, e.AfterCents)
	require.False(t, e.CreatedAt.IsZero())
}
