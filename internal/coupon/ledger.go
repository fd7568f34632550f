package coupon

import "context"

// Ledger owns issuance counters and redemption records. Issue and Use
// are atomic check-and-mutate operations: no caller can observe the
// state between the check and the write. CancelUse is idempotent
// compensation guarded by order id; a mismatch is a silent no-op.
type Ledger interface {
	Get(ctx context.Context, couponID string) (*Coupon, error)
	GetRedemption(ctx context.Context, userID, couponID string) (*Redemption, error)
	Issue(ctx context.Context, userID, couponID string) error
	Use(ctx context.Context, userID, couponID, orderID string) error
	CancelUse(ctx context.Context, userID, couponID, orderID string) error
}
