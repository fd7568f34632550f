package coupon

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("coupon: not found")
	ErrAlreadyIssued = errors.New("coupon: already issued to user")
	ErrAlreadyUsed   = errors.New("coupon: already used")
	ErrExpired       = errors.New("coupon: expired")
	ErrSoldOut       = errors.New("coupon: sold out")
	ErrInvalidRate   = errors.New("coupon: discount rate must be in (0,100]")
)

type Coupon struct {
	ID             string
	DiscountRate   int // percent, (0,100]
	TotalQuantity  int
	IssuedQuantity int
	ExpiredAt      time.Time
}

func New(id string, rate, total int, expiredAt time.Time) (*Coupon, error) {
	if rate <= 0 || rate > 100 {
		return nil, ErrInvalidRate
	}
	return &Coupon{ID: id, DiscountRate: rate, TotalQuantity: total, ExpiredAt: expiredAt}, nil
}

// DiscountFor applies the percentage rate to a total, floored to whole cents.
func (c *Coupon) DiscountFor(totalCents int) int {
	return totalCents * c.DiscountRate / 100
}

type RedemptionStatus string

const (
	RedemptionAvailable RedemptionStatus = "AVAILABLE"
	RedemptionUsed      RedemptionStatus = "USED"
	RedemptionExpired   RedemptionStatus = "EXPIRED"
)

// Redemption is the per-(user,coupon) record. One per pair; that
// uniqueness is the dedup invariant.
type Redemption struct {
	UserID    string
	CouponID  string
	OrderID   string
	CreatedAt time.Time
	UsedAt    time.Time // zero until used
	ExpiredAt time.Time
}

func (r *Redemption) Status(now time.Time) RedemptionStatus {
	if !r.UsedAt.IsZero() {
		return RedemptionUsed
	}
	if now.After(r.ExpiredAt) {
		return RedemptionExpired
	}
	return RedemptionAvailable
}
