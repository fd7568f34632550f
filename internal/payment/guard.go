package payment

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefw/go-shop-saga/internal/redisx"
)

// Guard admits at most one in-flight payment attempt per order.
// Acquire returning false is not an error: another attempt holds it.
type Guard interface {
	Acquire(ctx context.Context, orderID string) (bool, error)
	Release(ctx context.Context, orderID string)
}

// RedisGuard uses SET NX with a TTL so a crashed saga cannot wedge an
// order forever.
type RedisGuard struct{ RDB *redis.Client }

func (g *RedisGuard) Acquire(ctx context.Context, orderID string) (bool, error) {
	key := fmt.Sprintf(redisx.KeySagaPay, orderID)
	return g.RDB.SetNX(ctx, key, "1", redisx.TTLSagaPay).Result()
}

func (g *RedisGuard) Release(ctx context.Context, orderID string) {
	key := fmt.Sprintf(redisx.KeySagaPay, orderID)
	_ = g.RDB.Del(context.WithoutCancel(ctx), key).Err()
}
