package reclaimer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/inventory"
	"github.com/ariefw/go-shop-saga/internal/memory"
	"github.com/ariefw/go-shop-saga/internal/orders"
	"github.com/ariefw/go-shop-saga/internal/reclaimer"
)

func setup(t *testing.T) (*memory.OrderStore, *memory.InventoryStore, *reclaimer.Reclaimer) {
	t.Helper()
	inv := memory.NewInventoryStore()
	inv.Put(&inventory.Option{ID: "opt1", ProductID: "p1", Name: "Hoodie / L", PriceCents: 1500, Stock: 100})
	ord := memory.NewOrderStore(inv)
	return ord, inv, &reclaimer.Reclaimer{Orders: ord, BatchSize: 100}
}

func age(t *testing.T, store *memory.OrderStore, orderID string) {
	t.Helper()
	ctx := context.Background()
	o, err := store.Get(ctx, orderID)
	require.NoError(t, err)
	o.ExpiredAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.UpdateGuarded(ctx, o, orders.StatusPending))
}

func TestSweepExpiresOverdueOrder(t *testing.T) {
	ctx := context.Background()
	ord, inv, rec := setup(t)
	pub := memory.NewPublisher()
	rec.Publisher = pub

	o, err := ord.Create(ctx, "u1", "", []orders.ItemInput{{OptionID: "opt1", Qty: 10}})
	require.NoError(t, err)
	age(t, ord, o.ID)

	opt, err := inv.Get(ctx, "opt1")
	require.NoError(t, err)
	require.Equal(t, 10, opt.ReservedStock)

	n, err := rec.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := ord.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusExpired, got.Status)

	opt, err = inv.Get(ctx, "opt1")
	require.NoError(t, err)
	require.Equal(t, 100, opt.Stock)
	require.Equal(t, 0, opt.ReservedStock)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, event.EventOrderExpired, events[0].EventType)
	require.Equal(t, o.ID, events[0].CorrelationID)
}

func TestSweepLeavesFreshOrdersAlone(t *testing.T) {
	ctx := context.Background()
	ord, inv, rec := setup(t)

	stale, err := ord.Create(ctx, "u1", "", []orders.ItemInput{{OptionID: "opt1", Qty: 3}})
	require.NoError(t, err)
	age(t, ord, stale.ID)
	fresh, err := ord.Create(ctx, "u2", "", []orders.ItemInput{{OptionID: "opt1", Qty: 5}})
	require.NoError(t, err)

	n, err := rec.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := ord.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, got.Status)

	opt, err := inv.Get(ctx, "opt1")
	require.NoError(t, err)
	require.Equal(t, 5, opt.ReservedStock) // only the fresh order's hold remains
}

func TestSweepSkipsSettledOrders(t *testing.T) {
	ctx := context.Background()
	ord, _, rec := setup(t)

	o, err := ord.Create(ctx, "u1", "", []orders.ItemInput{{OptionID: "opt1", Qty: 2}})
	require.NoError(t, err)
	age(t, ord, o.ID)

	// settled between ListExpired and ExpireWithRelease, from the
	// sweeper's point of view
	paid, err := ord.Get(ctx, o.ID)
	require.NoError(t, err)
	paid.Status = orders.StatusPaid
	paid.PaidAt = time.Now().UTC()
	require.NoError(t, ord.UpdateGuarded(ctx, paid, orders.StatusPending))

	n, err := rec.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	err = ord.ExpireWithRelease(ctx, o.ID, time.Now().UTC())
	require.ErrorIs(t, err, orders.ErrStatusChanged)

	got, err := ord.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPaid, got.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ord, inv, rec := setup(t)

	o, err := ord.Create(ctx, "u1", "", []orders.ItemInput{{OptionID: "opt1", Qty: 4}})
	require.NoError(t, err)
	age(t, ord, o.ID)

	n, err := rec.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = rec.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	opt, err := inv.Get(ctx, "opt1")
	require.NoError(t, err)
	require.Equal(t, 0, opt.ReservedStock)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, _, rec := setup(t)
	rec.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimer did not stop")
	}
}
