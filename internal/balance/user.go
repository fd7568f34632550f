package balance

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("balance: user not found")
	ErrInvalidAmount       = errors.New("balance: amount must be greater than zero")
	ErrInsufficientBalance = errors.New("balance: insufficient balance")
	ErrVersionConflict     = errors.New("balance: version conflict")
	ErrBrokenLog           = errors.New("balance: change log amounts do not add up")
)

// User carries the balance and the optimistic-lock version stamp.
// Mutated only through Ledger.Charge / Ledger.Deduct.
type User struct {
	ID           string
	BalanceCents int
	Version      int64
	UpdatedAt    time.Time
}

type ChangeCode string

const (
	CodeSystemCharge ChangeCode = "SYSTEM_CHARGE"
	CodePayment      ChangeCode = "PAYMENT"
	CodeAdjust       ChangeCode = "ADJUST"
)

// ChangeLog is one append-only audit row. AfterCents == BeforeCents +
// AmountCents, enforced at construction and never mutated after.
type ChangeLog struct {
	ID          string
	UserID      string
	AmountCents int // signed: positive credit, negative debit
	BeforeCents int
	AfterCents  int
	Code        ChangeCode
	Note        string
	RefID       string
	CreatedAt   time.Time
}

func NewChangeLog(id, userID string, amount, before, after int, code ChangeCode, note, refID string) (*ChangeLog, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if after != before+amount {
		return nil, ErrBrokenLog
	}
	return &ChangeLog{
		ID:          id,
		UserID:      userID,
		AmountCents: amount,
		BeforeCents: before,
		AfterCents:  after,
		Code:        code,
		Note:        note,
		RefID:       refID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
