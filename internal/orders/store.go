package orders

import (
	"context"
	"time"
)

type ItemInput struct {
	OptionID string `json:"option_id"`
	Qty      int    `json:"qty"`
}

// Store persists orders and their line snapshots. Create prices the
// lines from the catalog and reserves inventory in the same unit of
// work; a failed reservation creates nothing. UpdateGuarded writes the
// order conditioned on its current persisted status so concurrent
// settlement attempts cannot both win.
type Store interface {
	Create(ctx context.Context, userID, couponID string, items []ItemInput) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	Items(ctx context.Context, orderID string) ([]Item, error)
	UpdateGuarded(ctx context.Context, o *Order, expect Status) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	// ExpireWithRelease transitions one overdue PENDING order to EXPIRED
	// and releases its reserved stock, all under row locks. A concurrent
	// settle is reported as ErrStatusChanged, which callers skip.
	ExpireWithRelease(ctx context.Context, orderID string, now time.Time) error
}
