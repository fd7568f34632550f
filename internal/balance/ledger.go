package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxAttempts = 5
	baseBackoff = 20 * time.Millisecond
)

// Ledger runs every balance mutation through a bounded optimistic-retry
// loop: read, compute, version-conditioned write. A lost race reloads
// and retries with exponential backoff; exhausting attempts surfaces
// ErrVersionConflict.
type Ledger struct {
	Store  Store
	Logger *zap.Logger
}

// Charge credits the prepaid balance (SYSTEM_CHARGE).
func (l *Ledger) Charge(ctx context.Context, userID string, amountCents int, refID, note string) (*User, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, amountCents, CodeSystemCharge, refID, note)
}

// Deduct debits the balance (PAYMENT). Fails ErrInsufficientBalance
// without writing anything when funds are short.
func (l *Ledger) Deduct(ctx context.Context, userID string, amountCents int, refID, note string) (*User, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, -amountCents, CodePayment, refID, note)
}

// Adjust credits the balance outside the normal charge path (ADJUST),
// e.g. refunding a deduction during saga compensation.
func (l *Ledger) Adjust(ctx context.Context, userID string, amountCents int, refID, note string) (*User, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, amountCents, CodeAdjust, refID, note)
}

func (l *Ledger) apply(ctx context.Context, userID string, amount int, code ChangeCode, refID, note string) (*User, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, baseBackoff<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		u, err := l.Store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		before := u.BalanceCents
		after := before + amount
		if after < 0 {
			return nil, ErrInsufficientBalance
		}

		entry, err := NewChangeLog(uuid.NewString(), userID, amount, before, after, code, note, refID)
		if err != nil {
			return nil, err
		}

		u.BalanceCents = after
		err = l.Store.Apply(ctx, u, entry)
		if errors.Is(err, ErrVersionConflict) {
			if l.Logger != nil {
				l.Logger.Debug("balance: optimistic conflict, retrying",
					zap.String("user_id", userID), zap.Int("attempt", attempt+1))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		u.Version++
		return u, nil
	}
	return nil, fmt.Errorf("balance: %d attempts exhausted for user %s: %w", maxAttempts, userID, ErrVersionConflict)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
