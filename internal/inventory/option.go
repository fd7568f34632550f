package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product option not found")
	ErrInvalidQty        = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidStock      = errors.New("inventory: stock counters out of range")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Option is the unit of inventory: one product variant with a stock
// counter and a soft-hold counter. 0 <= ReservedStock <= Stock always.
type Option struct {
	ID            string
	ProductID     string
	Name          string
	PriceCents    int
	Stock         int
	ReservedStock int
	UpdatedAt     time.Time
}

func (o *Option) Available() int { return o.Stock - o.ReservedStock }

// Reserve places a soft hold. Stock itself is untouched.
func (o *Option) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	if o.ReservedStock+qty > o.Stock {
		return ErrInsufficientStock
	}
	o.ReservedStock += qty
	o.touch()
	return nil
}

// Confirm turns a reservation into a permanent deduction.
func (o *Option) Confirm(qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	if o.Stock-qty < 0 || o.ReservedStock-qty < 0 {
		return ErrInvalidStock
	}
	o.Stock -= qty
	o.ReservedStock -= qty
	o.touch()
	return nil
}

// Release drops a soft hold without touching stock. Used on expiry/cancel.
func (o *Option) Release(qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	if o.ReservedStock-qty < 0 {
		return ErrInvalidStock
	}
	o.ReservedStock -= qty
	o.touch()
	return nil
}

// Restore undoes a Confirm: both counters go back up. Used by
// payment-failure compensation.
func (o *Option) Restore(qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	o.Stock += qty
	o.ReservedStock += qty
	if o.ReservedStock > o.Stock {
		o.Stock -= qty
		o.ReservedStock -= qty
		return ErrInvalidStock
	}
	o.touch()
	return nil
}

func (o *Option) touch() { o.UpdatedAt = time.Now().UTC() }
