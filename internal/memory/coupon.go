package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ariefw/go-shop-saga/internal/coupon"
)

// CouponLedger replicates the Redis ledger's check-and-mutate semantics
// under one mutex.
type CouponLedger struct {
	mu          sync.Mutex
	coupons     map[string]*coupon.Coupon
	redemptions map[string]*coupon.Redemption // couponID + "/" + userID
}

func NewCouponLedger() *CouponLedger {
	return &CouponLedger{
		coupons:     make(map[string]*coupon.Coupon),
		redemptions: make(map[string]*coupon.Redemption),
	}
}

func redemptionKey(couponID, userID string) string { return couponID + "/" + userID }

func (l *CouponLedger) Put(c *coupon.Coupon) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := *c
	l.coupons[c.ID] = &clone
}

func (l *CouponLedger) Get(ctx context.Context, couponID string) (*coupon.Coupon, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.coupons[couponID]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (l *CouponLedger) GetRedemption(ctx context.Context, userID, couponID string) (*coupon.Redemption, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.redemptions[redemptionKey(couponID, userID)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (l *CouponLedger) Issue(ctx context.Context, userID, couponID string) error {
	_ = ctx
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.coupons[couponID]
	if !ok {
		return coupon.ErrNotFound
	}
	if _, exists := l.redemptions[redemptionKey(couponID, userID)]; exists {
		return coupon.ErrAlreadyIssued
	}
	if now.After(c.ExpiredAt) {
		return coupon.ErrExpired
	}
	if c.IssuedQuantity >= c.TotalQuantity {
		return coupon.ErrSoldOut
	}
	c.IssuedQuantity++
	l.redemptions[redemptionKey(couponID, userID)] = &coupon.Redemption{
		UserID:    userID,
		CouponID:  couponID,
		CreatedAt: now,
		ExpiredAt: c.ExpiredAt,
	}
	return nil
}

func (l *CouponLedger) Use(ctx context.Context, userID, couponID, orderID string) error {
	_ = ctx
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.redemptions[redemptionKey(couponID, userID)]
	if !ok {
		return coupon.ErrNotFound
	}
	if !r.UsedAt.IsZero() {
		return coupon.ErrAlreadyUsed
	}
	if now.After(r.ExpiredAt) {
		return coupon.ErrExpired
	}
	r.UsedAt = now
	r.OrderID = orderID
	return nil
}

func (l *CouponLedger) CancelUse(ctx context.Context, userID, couponID, orderID string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.redemptions[redemptionKey(couponID, userID)]
	if !ok || r.OrderID != orderID {
		return nil // silent no-op: redeemed again by someone else, or never used
	}
	r.UsedAt = time.Time{}
	r.OrderID = ""
	return nil
}
