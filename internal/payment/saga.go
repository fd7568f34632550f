package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefw/go-shop-saga/internal/balance"
	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/inventory"
	"github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/metrics"
	"github.com/ariefw/go-shop-saga/internal/orders"
)

// ErrInFlight means another payment attempt currently holds the order.
var ErrInFlight = errors.New("payment: attempt already in flight")

// Receipt is what a successful settlement returns to the caller.
type Receipt struct {
	OrderID       string    `json:"order_id"`
	TotalCents    int       `json:"total_cents"`
	DiscountCents int       `json:"discount_cents"`
	FinalCents    int       `json:"final_cents"`
	BalanceCents  int       `json:"balance_cents"`
	PaidAt        time.Time `json:"paid_at"`
}

// Saga settles one order across three independently-owned ledgers in
// three phases: processing (inventory confirm + coupon use), payment
// (balance deduct), processed (notification). No lock spans the
// ledgers; cross-ledger consistency comes from compensation alone.
type Saga struct {
	Orders    orders.Store
	Inventory inventory.Store
	Coupons   coupon.Ledger
	Balance   *balance.Ledger
	Guard     Guard
	Publisher event.Publisher
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Service   string

	tracer trace.Tracer
}

func NewSaga(o orders.Store, inv inventory.Store, c coupon.Ledger, b *balance.Ledger,
	g Guard, pub event.Publisher, logger *zap.Logger, m *metrics.Metrics, service string) *Saga {
	return &Saga{
		Orders:    o,
		Inventory: inv,
		Coupons:   c,
		Balance:   b,
		Guard:     g,
		Publisher: pub,
		Logger:    logger,
		Metrics:   m,
		Service:   service,
		tracer:    otel.Tracer("payment-saga"),
	}
}

// Pay runs one settlement attempt. On any failure after a sub-step
// succeeded, the completed sub-steps are compensated before the
// original error is returned; the order ends back in its pre-attempt
// state.
func (s *Saga) Pay(ctx context.Context, userID, orderID string) (*Receipt, error) {
	now := time.Now().UTC()

	ok, err := s.Guard.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.count("rejected")
		return nil, ErrInFlight
	}
	defer s.Guard.Release(ctx, orderID)

	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		s.count("rejected")
		return nil, err
	}
	if o.UserID != userID {
		s.count("rejected")
		return nil, orders.ErrNotOwner
	}
	if err := o.CanPay(now); err != nil {
		s.count("rejected")
		return nil, err
	}
	items, err := s.Orders.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines := toLines(items)

	usedCoupon, err := s.phaseProcessing(ctx, o, lines, now)
	if err != nil {
		s.count("failed")
		return nil, err
	}

	u, err := s.phasePayment(ctx, o, lines, usedCoupon, now)
	if err != nil {
		s.count("failed")
		return nil, err
	}

	s.phaseProcessed(ctx, o, items)
	s.count("success")

	return &Receipt{
		OrderID:       o.ID,
		TotalCents:    o.TotalCents,
		DiscountCents: o.DiscountCents,
		FinalCents:    o.FinalCents,
		BalanceCents:  u.BalanceCents,
		PaidAt:        o.PaidAt,
	}, nil
}

// phaseProcessing confirms the reservation permanently and redeems the
// coupon if one was selected at order creation.
func (s *Saga) phaseProcessing(ctx context.Context, o *orders.Order, lines []inventory.Line, now time.Time) (usedCoupon bool, err error) {
	ctx, span := s.tracer.Start(ctx, "saga.processing")
	defer span.End()
	defer s.observe("processing", time.Now())

	if err := s.Inventory.Confirm(ctx, lines); err != nil {
		span.RecordError(err)
		return false, err
	}
	if o.CouponID == "" {
		return false, nil
	}

	if err := s.Coupons.Use(ctx, o.UserID, o.CouponID, o.ID); err != nil {
		span.RecordError(err)
		s.compensate(ctx, o, lines, rollback{stock: true}, now)
		return false, err
	}
	c, err := s.Coupons.Get(ctx, o.CouponID)
	if err == nil {
		err = o.ApplyCoupon(o.CouponID, c.DiscountFor(o.TotalCents), now)
	}
	if err == nil {
		err = s.Orders.UpdateGuarded(ctx, o, orders.StatusPending)
	}
	if err != nil {
		span.RecordError(err)
		s.compensate(ctx, o, lines, rollback{stock: true, coupon: true}, now)
		return false, err
	}
	return true, nil
}

// phasePayment deducts the final amount and flips the order to PAID.
func (s *Saga) phasePayment(ctx context.Context, o *orders.Order, lines []inventory.Line, usedCoupon bool, now time.Time) (*balance.User, error) {
	ctx, span := s.tracer.Start(ctx, "saga.payment")
	defer span.End()
	defer s.observe("payment", time.Now())

	var u *balance.User
	var err error
	if o.FinalCents > 0 {
		u, err = s.Balance.Deduct(ctx, o.UserID, o.FinalCents, o.ID, "order payment")
	} else {
		// fully discounted: nothing to deduct, but the receipt still
		// reports the current balance
		u, err = s.Balance.Store.Get(ctx, o.UserID)
	}
	if err != nil {
		span.RecordError(err)
		s.compensate(ctx, o, lines, rollback{stock: true, coupon: usedCoupon, discount: usedCoupon}, now)
		return nil, err
	}

	if err := o.Pay(now); err != nil {
		// unreachable while the guard holds; kept for the invariant
		span.RecordError(err)
		s.compensate(ctx, o, lines, rollback{stock: true, coupon: usedCoupon, discount: usedCoupon, refundCents: o.FinalCents}, now)
		return nil, err
	}
	if err := s.Orders.UpdateGuarded(ctx, o, orders.StatusPending); err != nil {
		// a concurrent transition won (reclaimer expiry, typically):
		// undo everything including the deduction
		span.RecordError(err)
		s.compensate(ctx, o, lines, rollback{stock: true, coupon: usedCoupon, discount: usedCoupon, refundCents: o.FinalCents}, now)
		return nil, err
	}
	return u, nil
}

// phaseProcessed publishes the completion notification. Best effort:
// failures are logged, never rolled back.
func (s *Saga) phaseProcessed(ctx context.Context, o *orders.Order, items []orders.Item) {
	defer s.observe("processed", time.Now())

	evItems := make([]event.CompletedItem, 0, len(items))
	for _, it := range items {
		evItems = append(evItems, event.CompletedItem{
			ProductOptionID: it.OptionID,
			ProductName:     it.ProductName,
			Qty:             it.Qty,
			PriceCents:      it.PriceCents,
		})
	}
	env := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: o.ID,
		Payload: kafka.MustMarshal(event.OrderCompletedPayload{
			OrderID:       o.ID,
			UserID:        o.UserID,
			CouponID:      o.CouponID,
			TotalCents:    o.TotalCents,
			DiscountCents: o.DiscountCents,
			FinalCents:    o.FinalCents,
			PaidAt:        o.PaidAt,
			Items:         evItems,
		}),
	}
	if err := s.Publisher.Publish(ctx, env); err != nil {
		s.logger().Warn("order completion notification failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}
}

type rollback struct {
	stock       bool
	coupon      bool
	discount    bool
	refundCents int
}

// compensate is best effort and idempotent. Its own failures are
// logged for manual reconciliation, never thrown over the original
// error.
func (s *Saga) compensate(ctx context.Context, o *orders.Order, lines []inventory.Line, rb rollback, now time.Time) {
	if s.Metrics != nil {
		s.Metrics.Compensations.Inc()
	}
	log := s.logger().With(zap.String("order_id", o.ID))

	if rb.stock {
		if err := s.Inventory.Restore(ctx, lines); err != nil {
			log.Error("compensation: restore stock failed", zap.Error(err))
		}
	}
	if rb.coupon {
		if err := s.Coupons.CancelUse(ctx, o.UserID, o.CouponID, o.ID); err != nil {
			log.Error("compensation: cancel coupon use failed", zap.Error(err))
		}
	}
	if rb.refundCents > 0 {
		if _, err := s.Balance.Adjust(ctx, o.UserID, rb.refundCents, o.ID, "payment compensation"); err != nil {
			log.Error("compensation: refund failed", zap.Error(err))
		}
	}
	// Back out the order mutations. Already-PENDING is a no-op here:
	// the attempt may fail before the order ever reached PAID.
	if err := o.CancelPayment(now); err != nil {
		log.Error("compensation: cancel payment failed", zap.Error(err))
		return
	}
	if rb.discount {
		o.ResetDiscount(now)
		if err := s.Orders.UpdateGuarded(ctx, o, orders.StatusPending); err != nil {
			log.Error("compensation: reset order failed", zap.Error(err))
		}
	}
}

func (s *Saga) count(result string) {
	if s.Metrics != nil {
		s.Metrics.Payments.WithLabelValues(result).Inc()
	}
}

func (s *Saga) observe(phase string, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

func (s *Saga) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func toLines(items []orders.Item) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventory.Line{OptionID: it.OptionID, Qty: it.Qty})
	}
	return lines
}
