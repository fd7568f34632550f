package redisx

import "time"

const (
	// Coupon counters: coupon:{coupon_id} -> hash
	// fields: id, discount_rate, total_quantity, issued_quantity, expired_at
	KeyCoupon = "coupon:%s"

	// Redemption record: coupon:{coupon_id}:user:{user_id} -> hash
	// fields: created_at, used_at, expired_at, order_id
	KeyRedemption = "coupon:%s:user:%s"

	// In-flight payment guard: saga:pay:{order_id} -> "1"
	KeySagaPay = "saga:pay:%s"

	// Cache status order: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSagaPay     = 1 * time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
