package reclaimer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/metrics"
	"github.com/ariefw/go-shop-saga/internal/orders"
)

// Reclaimer sweeps overdue PENDING orders: expire the order, release
// its reservation. It races the saga on purpose; losing that race is
// the expected outcome, not an error.
type Reclaimer struct {
	Orders    orders.Store
	Interval  time.Duration
	BatchSize int
	Publisher event.Publisher // optional
	Service   string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (r *Reclaimer) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.SweepOnce(ctx)
			if err != nil {
				r.logger().Error("reclaimer sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.logger().Info("expired abandoned orders", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce expires one batch and reports how many orders it
// transitioned. Orders settled concurrently are skipped silently.
func (r *Reclaimer) SweepOnce(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	now := time.Now().UTC()
	ids, err := r.Orders.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := r.Orders.ExpireWithRelease(ctx, id, now)
		if errors.Is(err, orders.ErrStatusChanged) {
			continue // paid while we were sweeping
		}
		if err != nil {
			r.logger().Error("expire order failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		expired++
		if r.Metrics != nil {
			r.Metrics.ExpiredOrders.Inc()
		}
		r.notify(ctx, id, now)
	}
	return expired, nil
}

// notify is best effort, like the saga's completion event.
func (r *Reclaimer) notify(ctx context.Context, orderID string, now time.Time) {
	if r.Publisher == nil {
		return
	}
	o, err := r.Orders.Get(ctx, orderID)
	if err != nil {
		r.logger().Warn("expired order lookup failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	env := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.EventOrderExpired,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      r.Service,
		CorrelationID: orderID,
		Payload: kafka.MustMarshal(event.OrderExpiredPayload{
			OrderID:   orderID,
			UserID:    o.UserID,
			ExpiredAt: now,
		}),
	}
	if err := r.Publisher.Publish(ctx, env); err != nil {
		r.logger().Warn("order expiry notification failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (r *Reclaimer) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
