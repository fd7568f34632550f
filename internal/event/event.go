package event

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderExpired   = "OrderExpired"
	EventCouponIssued   = "CouponIssued"
	EventCouponUsed     = "CouponUsed"
)

const (
	TopicOrderCompleted = "order.completed"
	TopicOrderExpired   = "order.expired"
	TopicCouponIssued   = "coupon.issued"
	TopicCouponUsed     = "coupon.used"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher is the outbound port for phase-3 notifications and coupon
// mirror events. Implementations are fire-and-forget: a nil error only
// means the event was accepted for delivery.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// ---- payloads ----

type CompletedItem struct {
	ProductOptionID string `json:"product_option_id"`
	ProductName     string `json:"product_name"`
	Qty             int    `json:"qty"`
	PriceCents      int    `json:"price_cents"`
}

type OrderCompletedPayload struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	CouponID      string          `json:"coupon_id,omitempty"`
	TotalCents    int             `json:"total_cents"`
	DiscountCents int             `json:"discount_cents"`
	FinalCents    int             `json:"final_cents"`
	PaidAt        time.Time       `json:"paid_at"`
	Items         []CompletedItem `json:"items"`
}

type OrderExpiredPayload struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

type CouponIssuedPayload struct {
	CouponID  string    `json:"coupon_id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

type CouponUsedPayload struct {
	CouponID string    `json:"coupon_id"`
	UserID   string    `json:"user_id"`
	OrderID  string    `json:"order_id"`
	UsedAt   time.Time `json:"used_at"`
}

// PartitionKey keeps every event of one aggregate on one partition so
// consumers observe them in order.
func PartitionKey(id string) []byte { return []byte(id) }
