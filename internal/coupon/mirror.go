package coupon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefw/go-shop-saga/internal/event"
	"github.com/ariefw/go-shop-saga/internal/kafka"
	"github.com/ariefw/go-shop-saga/internal/redisx"
)

// MirrorRepo keeps the durable copy of redemptions in Postgres for
// reporting. It trails the Redis ledger and is never consulted by the
// saga.
type MirrorRepo struct{ DB *pgxpool.Pool }

func (r *MirrorRepo) UpsertIssued(ctx context.Context, p event.CouponIssuedPayload) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO user_coupons(user_id, coupon_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, coupon_id) DO NOTHING`,
		p.UserID, p.CouponID, p.IssuedAt)
	return err
}

func (r *MirrorRepo) MarkUsed(ctx context.Context, p event.CouponUsedPayload) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO user_coupons(user_id, coupon_id, order_id, created_at, used_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, coupon_id)
		DO UPDATE SET order_id=$3, used_at=$4`,
		p.UserID, p.CouponID, p.OrderID, p.UsedAt)
	return err
}

// Syncer consumes coupon mirror events. Installed as a kafka consumer
// handler by cmd/couponsync.
type Syncer struct {
	Mirror *MirrorRepo
	Redis  *redis.Client
	Logger *zap.Logger
}

func (s *Syncer) Handle(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "couponsync", env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	switch env.EventType {
	case event.EventCouponIssued:
		p, err := kafka.UnwrapPayload[event.CouponIssuedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Mirror.UpsertIssued(ctx, p); err != nil {
			return err
		}
	case event.EventCouponUsed:
		p, err := kafka.UnwrapPayload[event.CouponUsedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Mirror.MarkUsed(ctx, p); err != nil {
			return err
		}
	default:
		s.Logger.Debug("couponsync: skipping event", zap.String("type", env.EventType))
		return nil
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
