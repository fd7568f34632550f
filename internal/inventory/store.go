package inventory

import "context"

// Line is one (option, qty) pair of an order.
type Line struct {
	OptionID string
	Qty      int
}

// Store linearizes all counter mutations per option row. Each batch
// method is one transaction: if any line fails, no line is applied.
type Store interface {
	Get(ctx context.Context, optionID string) (*Option, error)
	Reserve(ctx context.Context, lines []Line) error
	Confirm(ctx context.Context, lines []Line) error
	Release(ctx context.Context, lines []Line) error
	Restore(ctx context.Context, lines []Line) error
}
