package coupon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

// Per-operation Lua so that check and mutation run as one indivisible
// round trip. Scripts answer with a status string that maps onto the
// sentinel errors below.
var issueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
if redis.call('EXISTS', KEYS[2]) == 1 then return 'ALREADY_ISSUED' end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expired_at'))
if exp and tonumber(ARGV[1]) > exp then return 'EXPIRED' end
local total = tonumber(redis.call('HGET', KEYS[1], 'total_quantity') or '0')
local issued = tonumber(redis.call('HGET', KEYS[1], 'issued_quantity') or '0')
if issued >= total then return 'SOLD_OUT' end
redis.call('HINCRBY', KEYS[1], 'issued_quantity', 1)
redis.call('HSET', KEYS[2], 'created_at', ARGV[1], 'expired_at', exp or '', 'used_at', '', 'order_id', '')
return 'OK'
`)

var useScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'NOT_FOUND' end
local used = redis.call('HGET', KEYS[1], 'used_at')
if used and used ~= '' then return 'ALREADY_USED' end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expired_at'))
if exp and tonumber(ARGV[1]) > exp then return 'EXPIRED' end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1], 'order_id', ARGV[2])
return 'OK'
`)

var cancelUseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 'OK' end
if redis.call('HGET', KEYS[1], 'order_id') ~= ARGV[1] then return 'OK' end
redis.call('HSET', KEYS[1], 'used_at', '', 'order_id', '')
return 'OK'
`)

// RedisLedger is the authoritative coupon store. Successful mutations
// additionally emit mirror events; the durable copy is off the
// consistency-critical path.
type RedisLedger struct {
	RDB       *redis.Client
	Publisher event.Publisher // optional
	Service   string
}

func (l *RedisLedger) Get(ctx context.Context, couponID string) (*Coupon, error) {
	m, err := l.RDB.HGetAll(ctx, fmt.Sprintf(redisx.KeyCoupon, couponID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return &Coupon{
		ID:             couponID,
		DiscountRate:   atoi(m["discount_rate"]),
		TotalQuantity:  atoi(m["total_quantity"]),
		IssuedQuantity: atoi(m["issued_quantity"]),
		ExpiredAt:      fromUnix(m["expired_at"]),
	}, nil
}

func (l *RedisLedger) GetRedemption(ctx context.Context, userID, couponID string) (*Redemption, error) {
	m, err := l.RDB.HGetAll(ctx, fmt.Sprintf(redisx.KeyRedemption, couponID, userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return &Redemption{
		UserID:    userID,
		CouponID:  couponID,
		OrderID:   m["order_id"],
		CreatedAt: fromUnix(m["created_at"]),
		UsedAt:    fromUnix(m["used_at"]),
		ExpiredAt: fromUnix(m["expired_at"]),
	}, nil
}

// Save seeds or overwrites the coupon hash. Admin path, not part of the
// Ledger port.
func (l *RedisLedger) Save(ctx context.Context, c *Coupon) error {
	return l.RDB.HSet(ctx, fmt.Sprintf(redisx.KeyCoupon, c.ID),
		"id", c.ID,
		"discount_rate", c.DiscountRate,
		"total_quantity", c.TotalQuantity,
		"issued_quantity", c.IssuedQuantity,
		"expired_at", c.ExpiredAt.Unix(),
	).Err()
}

func (l *RedisLedger) Issue(ctx context.Context, userID, couponID string) error {
	now := time.Now().UTC()
	keys := []string{
		fmt.Sprintf(redisx.KeyCoupon, couponID),
		fmt.Sprintf(redisx.KeyRedemption, couponID, userID),
	}
	status, err := issueScript.Run(ctx, l.RDB, keys, now.Unix()).Text()
	if err != nil {
		return err
	}
	if err := statusErr(status); err != nil {
		return err
	}
	l.emit(ctx, event.EventCouponIssued, couponID, event.CouponIssuedPayload{
		CouponID: couponID, UserID: userID, IssuedAt: now,
	})
	return nil
}

func (l *RedisLedger) Use(ctx context.Context, userID, couponID, orderID string) error {
	now := time.Now().UTC()
	keys := []string{fmt.Sprintf(redisx.KeyRedemption, couponID, userID)}
	status, err := useScript.Run(ctx, l.RDB, keys, now.Unix(), orderID).Text()
	if err != nil {
		return err
	}
	if err := statusErr(status); err != nil {
		return err
	}
	l.emit(ctx, event.EventCouponUsed, couponID, event.CouponUsedPayload{
		CouponID: couponID, UserID: userID, OrderID: orderID, UsedAt: now,
	})
	return nil
}

func (l *RedisLedger) CancelUse(ctx context.Context, userID, couponID, orderID string) error {
	keys := []string{fmt.Sprintf(redisx.KeyRedemption, couponID, userID)}
	_, err := cancelUseScript.Run(ctx, l.RDB, keys, orderID).Text()
	return err
}

func (l *RedisLedger) emit(ctx context.Context, eventType, couponID string, payload any) {
	if l.Publisher == nil {
		return
	}
	_ = l.Publisher.Publish(ctx, event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      l.Service,
		CorrelationID: couponID,
		Payload:       kafka.MustMarshal(payload),
	})
}

func statusErr(status string) error {
	switch status {
	case "OK":
		return nil
	case "NOT_FOUND":
		return ErrNotFound
	case "ALREADY_ISSUED":
		return ErrAlreadyIssued
	case "ALREADY_USED":
		return ErrAlreadyUsed
	case "EXPIRED":
		return ErrExpired
	case "SOLD_OUT":
		return ErrSoldOut
	default:
		return errors.New("coupon: unexpected script status " + status)
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func fromUnix(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
