package coupon_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/memory"
)

func TestNewCouponRate(t *testing.T) {
	_, err := coupon.New("c1", 0, 10, time.Now())
	require.ErrorIs(t, err, coupon.ErrInvalidRate)
	_, err = coupon.New("c1", 101, 10, time.Now())
	require.ErrorIs(t, err, coupon.ErrInvalidRate)

	c, err := coupon.New("c1", 100, 10, time.Now())
	require.NoError(t, err)
	require.Equal(t, 100, c.DiscountRate)
}

func TestDiscountForFloors(t *testing.T) {
	c := &coupon.Coupon{DiscountRate: 10}
	require.Equal(t, 4500, c.DiscountFor(45000))

	c = &coupon.Coupon{DiscountRate: 33}
	require.Equal(t, 33, c.DiscountFor(101)) // 33.33 floored
}

func TestRedemptionStatus(t *testing.T) {
	now := time.Now().UTC()
	r := &coupon.Redemption{ExpiredAt: now.Add(time.Hour)}
	require.Equal(t, coupon.RedemptionAvailable, r.Status(now))

	r.UsedAt = now
	require.Equal(t, coupon.RedemptionUsed, r.Status(now))

	r = &coupon.Redemption{ExpiredAt: now.Add(-time.Hour)}
	require.Equal(t, coupon.RedemptionExpired, r.Status(now))
}

func freshLedger(t *testing.T, total int) *memory.CouponLedger {
	t.Helper()
	l := memory.NewCouponLedger()
	l.Put(&coupon.Coupon{
		ID:            "c1",
		DiscountRate:  10,
		TotalQuantity: total,
		ExpiredAt:     time.Now().UTC().Add(time.Hour),
	})
	return l
}

func TestNoOverIssue(t *testing.T) {
	const total = 10
	l := freshLedger(t, total)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 100)
	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Issue(ctx, userID, "c1")
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, coupon.ErrSoldOut)
		}
	}
	require.Equal(t, total, succeeded)

	c, err := l.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, total, c.IssuedQuantity)
}

func TestIssueDedup(t *testing.T) {
	l := freshLedger(t, 10)
	ctx := context.Background()

	require.NoError(t, l.Issue(ctx, "u1", "c1"))
	require.ErrorIs(t, l.Issue(ctx, "u1", "c1"), coupon.ErrAlreadyIssued)

	c, err := l.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, c.IssuedQuantity)
}

func TestIssueUnknownCoupon(t *testing.T) {
	l := memory.NewCouponLedger()
	require.ErrorIs(t, l.Issue(context.Background(), "u1", "nope"), coupon.ErrNotFound)
}

func TestIssueExpiredCoupon(t *testing.T) {
	l := memory.NewCouponLedger()
	l.Put(&coupon.Coupon{
		ID: "c1", DiscountRate: 10, TotalQuantity: 10,
		ExpiredAt: time.Now().UTC().Add(-time.Minute),
	})
	require.ErrorIs(t, l.Issue(context.Background(), "u1", "c1"), coupon.ErrExpired)
}

func TestNoDoubleRedemption(t *testing.T) {
	l := freshLedger(t, 10)
	ctx := context.Background()
	require.NoError(t, l.Issue(ctx, "u1", "c1"))

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		orderID := fmt.Sprintf("o%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Use(ctx, "u1", "c1", orderID)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
		}
	}
	require.Equal(t, 1, succeeded)
}

func TestCancelUse(t *testing.T) {
	l := freshLedger(t, 10)
	ctx := context.Background()
	require.NoError(t, l.Issue(ctx, "u1", "c1"))
	require.NoError(t, l.Use(ctx, "u1", "c1", "o1"))

	// mismatched order id: silent no-op
	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "other-order"))
	r, err := l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, "o1", r.OrderID)
	require.False(t, r.UsedAt.IsZero())

	// matching order id: cleared, coupon usable again
	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "o1"))
	r, err = l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Empty(t, r.OrderID)
	require.True(t, r.UsedAt.IsZero())

	require.NoError(t, l.Use(ctx, "u1", "c1", "o2"))
}

func TestCancelUseIdempotent(t *testing.T) {
	l := freshLedger(t, 10)
	ctx := context.Background()
	require.NoError(t, l.Issue(ctx, "u1", "c1"))
	require.NoError(t, l.Use(ctx, "u1", "c1", "o1"))

	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "o1"))
	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "o1"))
	require.NoError(t, l.CancelUse(ctx, "unknown", "c1", "o1"))
}
