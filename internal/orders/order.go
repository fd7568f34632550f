package orders

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("orders: not found")
	ErrAlreadyPaid   = errors.New("orders: already paid")
	ErrExpired       = errors.New("orders: order expired")
	ErrInvalidStatus = errors.New("orders: invalid status for transition")
	ErrInvalidAmount = errors.New("orders: invalid amount")
	ErrInvalidQty    = errors.New("orders: quantity must be greater than zero")
	ErrStatusChanged = errors.New("orders: status changed concurrently")
	ErrNotOwner      = errors.New("orders: order does not belong to user")
)

// PaymentWindow is how long a PENDING order may be settled before the
// reclaimer expires it.
const PaymentWindow = 10 * time.Minute

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// PAID -> PENDING is the compensation path, observed transiently only
// inside the saga.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusExpired: true, StatusCancelled: true},
	StatusPaid:      {StatusPending: true},
	StatusExpired:   {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool { return validNext[from][to] }

type Order struct {
	ID            string
	UserID        string
	CouponID      string // empty when no coupon selected
	TotalCents    int
	DiscountCents int
	FinalCents    int
	Status        Status
	CreatedAt     time.Time
	PaidAt        time.Time // zero until paid
	ExpiredAt     time.Time
	UpdatedAt     time.Time
}

// Item is the immutable per-line snapshot taken at order creation.
type Item struct {
	OrderID       string
	OptionID      string
	ProductName   string
	PriceCents    int
	Qty           int
	SubtotalCents int
}

func NewItem(orderID, optionID, name string, priceCents, qty int) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQty
	}
	if priceCents < 0 {
		return nil, ErrInvalidAmount
	}
	return &Item{
		OrderID:       orderID,
		OptionID:      optionID,
		ProductName:   name,
		PriceCents:    priceCents,
		Qty:           qty,
		SubtotalCents: priceCents * qty,
	}, nil
}

func New(id, userID, couponID string, items []Item, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidQty
	}
	total := 0
	for _, it := range items {
		total += it.SubtotalCents
	}
	return &Order{
		ID:         id,
		UserID:     userID,
		CouponID:   couponID,
		TotalCents: total,
		FinalCents: total,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiredAt:  now.Add(PaymentWindow),
		UpdatedAt:  now,
	}, nil
}

// CanPay reports whether a payment attempt may proceed, with the
// reason when it may not.
func (o *Order) CanPay(now time.Time) error {
	switch {
	case o.Status == StatusPaid:
		return ErrAlreadyPaid
	case o.Status == StatusExpired || now.After(o.ExpiredAt):
		return ErrExpired
	case o.Status != StatusPending:
		return ErrInvalidStatus
	}
	return nil
}

func (o *Order) Pay(now time.Time) error {
	if err := o.CanPay(now); err != nil {
		return err
	}
	o.Status = StatusPaid
	o.PaidAt = now
	o.touch(now)
	return nil
}

func (o *Order) Expire(now time.Time) error {
	if o.Status != StatusPending || !now.After(o.ExpiredAt) {
		return ErrInvalidStatus
	}
	o.Status = StatusExpired
	o.touch(now)
	return nil
}

// CancelPayment undoes an optimistic PAID transition during saga
// compensation. Already-PENDING orders are a no-op, not an error: the
// payment phase may fail before the order ever reached PAID.
func (o *Order) CancelPayment(now time.Time) error {
	if o.Status == StatusPending {
		return nil
	}
	if o.Status != StatusPaid {
		return ErrInvalidStatus
	}
	o.Status = StatusPending
	o.PaidAt = time.Time{}
	o.touch(now)
	return nil
}

func (o *Order) ApplyCoupon(couponID string, discountCents int, now time.Time) error {
	if discountCents < 0 || discountCents > o.TotalCents {
		return ErrInvalidAmount
	}
	o.CouponID = couponID
	o.DiscountCents = discountCents
	o.FinalCents = o.TotalCents - discountCents
	o.touch(now)
	return nil
}

// ResetDiscount reverts ApplyCoupon during compensation. The selected
// coupon id stays; only the amounts go back.
func (o *Order) ResetDiscount(now time.Time) {
	o.DiscountCents = 0
	o.FinalCents = o.TotalCents
	o.touch(now)
}

func (o *Order) touch(now time.Time) { o.UpdatedAt = now }
