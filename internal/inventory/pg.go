package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore mutates product_options rows under SELECT ... FOR UPDATE so
// concurrent read-modify-writes against the same option serialize.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Get(ctx context.Context, optionID string) (*Option, error) {
	var o Option
	err := s.DB.QueryRow(ctx, `
		SELECT id, product_id, name, price_cents, stock, reserved_stock, updated_at
		FROM product_options WHERE id=$1`, optionID).
		Scan(&o.ID, &o.ProductID, &o.Name, &o.PriceCents, &o.Stock, &o.ReservedStock, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PGStore) Reserve(ctx context.Context, lines []Line) error {
	return s.mutate(ctx, lines, (*Option).Reserve)
}

func (s *PGStore) Confirm(ctx context.Context, lines []Line) error {
	return s.mutate(ctx, lines, (*Option).Confirm)
}

func (s *PGStore) Release(ctx context.Context, lines []Line) error {
	return s.mutate(ctx, lines, (*Option).Release)
}

func (s *PGStore) Restore(ctx context.Context, lines []Line) error {
	return s.mutate(ctx, lines, (*Option).Restore)
}

// mutate locks every option row, applies op in memory, writes the new
// counters back. Any failure rolls back the whole batch.
func (s *PGStore) mutate(ctx context.Context, lines []Line, op func(*Option, int) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, ln := range lines {
		o, err := lockOption(ctx, tx, ln.OptionID)
		if err != nil {
			return err
		}
		if err := op(o, ln.Qty); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE product_options SET stock=$2, reserved_stock=$3, updated_at=now()
			WHERE id=$1`, o.ID, o.Stock, o.ReservedStock); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func lockOption(ctx context.Context, tx pgx.Tx, optionID string) (*Option, error) {
	var o Option
	err := tx.QueryRow(ctx, `
		SELECT id, product_id, name, price_cents, stock, reserved_stock, updated_at
		FROM product_options WHERE id=$1 FOR UPDATE`, optionID).
		Scan(&o.ID, &o.ProductID, &o.Name, &o.PriceCents, &o.Stock, &o.ReservedStock, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
