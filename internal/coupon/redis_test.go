package coupon_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ariefw/go-shop-saga/internal/coupon"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

func newRedisLedger(t *testing.T) (*coupon.RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return &coupon.RedisLedger{RDB: rdb}, srv
}

func saveCoupon(t *testing.T, l *coupon.RedisLedger, id string, rate, total int, expiredAt time.Time) {
	t.Helper()
	require.NoError(t, l.Save(context.Background(), &coupon.Coupon{
		ID:            id,
		DiscountRate:  rate,
		TotalQuantity: total,
		ExpiredAt:     expiredAt,
	}))
}

func TestRedisIssueLifecycle(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()
	saveCoupon(t, l, "c1", 10, 2, time.Now().UTC().Add(time.Hour))

	require.NoError(t, l.Issue(ctx, "u1", "c1"))
	require.ErrorIs(t, l.Issue(ctx, "u1", "c1"), coupon.ErrAlreadyIssued)
	require.NoError(t, l.Issue(ctx, "u2", "c1"))
	require.ErrorIs(t, l.Issue(ctx, "u3", "c1"), coupon.ErrSoldOut)

	c, err := l.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, c.IssuedQuantity)

	r, err := l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, coupon.RedemptionAvailable, r.Status(time.Now().UTC()))
	require.Equal(t, c.ExpiredAt, r.ExpiredAt)
}

func TestRedisIssueUnknownCoupon(t *testing.T) {
	l, _ := newRedisLedger(t)
	require.ErrorIs(t, l.Issue(context.Background(), "u1", "nope"), coupon.ErrNotFound)
}

func TestRedisIssueExpiredCoupon(t *testing.T) {
	l, _ := newRedisLedger(t)
	saveCoupon(t, l, "c1", 10, 5, time.Now().UTC().Add(-time.Minute))
	require.ErrorIs(t, l.Issue(context.Background(), "u1", "c1"), coupon.ErrExpired)
}

// A coupon hash seeded without expired_at must not break the issue
// script; the redemption just carries no expiry.
func TestRedisIssueWithoutExpiryField(t *testing.T) {
	l, srv := newRedisLedger(t)
	ctx := context.Background()
	srv.HSet(fmt.Sprintf(redisx.KeyCoupon, "c1"),
		"id", "c1", "discount_rate", "10", "total_quantity", "5", "issued_quantity", "0")

	require.NoError(t, l.Issue(ctx, "u1", "c1"))

	r, err := l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.True(t, r.ExpiredAt.IsZero())
}

func TestRedisUseAndCancelUse(t *testing.T) {
	l, _ := newRedisLedger(t)
	ctx := context.Background()
	saveCoupon(t, l, "c1", 10, 5, time.Now().UTC().Add(time.Hour))
	require.NoError(t, l.Issue(ctx, "u1", "c1"))

	require.NoError(t, l.Use(ctx, "u1", "c1", "o1"))
	require.ErrorIs(t, l.Use(ctx, "u1", "c1", "o2"), coupon.ErrAlreadyUsed)

	r, err := l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, "o1", r.OrderID)
	require.False(t, r.UsedAt.IsZero())

	// mismatched order id: silent no-op
	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "other-order"))
	r, err = l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, "o1", r.OrderID)

	// matching order id: cleared, usable again
	require.NoError(t, l.CancelUse(ctx, "u1", "c1", "o1"))
	r, err = l.GetRedemption(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Empty(t, r.OrderID)
	require.True(t, r.UsedAt.IsZero())
	require.NoError(t, l.Use(ctx, "u1", "c1", "o2"))
}

func TestRedisUseWithoutRedemption(t *testing.T) {
	l, _ := newRedisLedger(t)
	require.ErrorIs(t, l.Use(context.Background(), "u1", "c1", "o1"), coupon.ErrNotFound)
}

func TestRedisUseExpiredRedemption(t *testing.T) {
	l, srv := newRedisLedger(t)
	ctx := context.Background()
	saveCoupon(t, l, "c1", 10, 5, time.Now().UTC().Add(time.Hour))
	require.NoError(t, l.Issue(ctx, "u1", "c1"))

	past := strconv.FormatInt(time.Now().UTC().Add(-time.Minute).Unix(), 10)
	srv.HSet(fmt.Sprintf(redisx.KeyRedemption, "c1", "u1"), "expired_at", past)

	require.ErrorIs(t, l.Use(ctx, "u1", "c1", "o1"), coupon.ErrExpired)
}
