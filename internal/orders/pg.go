package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefw/go-shop-saga/internal/inventory"
)

type PGStore struct{ DB *pgxpool.Pool }

// Create prices each line from product_options (never trusting client
// prices), reserves the stock under FOR UPDATE, and inserts the order
// plus its item snapshot, all in one transaction.
func (s *PGStore) Create(ctx context.Context, userID, couponID string, inputs []ItemInput) (*Order, error) {
	if len(inputs) == 0 {
		return nil, ErrInvalidQty
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	orderID := uuid.NewString()
	items := make([]Item, 0, len(inputs))

	for _, in := range inputs {
		var name string
		var price, stock, reserved int
		err := tx.QueryRow(ctx, `
			SELECT name, price_cents, stock, reserved_stock
			FROM product_options WHERE id=$1 FOR UPDATE`, in.OptionID).
			Scan(&name, &price, &stock, &reserved)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if in.Qty <= 0 {
			return nil, ErrInvalidQty
		}
		if reserved+in.Qty > stock {
			return nil, inventory.ErrInsufficientStock
		}
		if _, err := tx.Exec(ctx, `
			UPDATE product_options SET reserved_stock = reserved_stock + $2, updated_at=now()
			WHERE id=$1`, in.OptionID, in.Qty); err != nil {
			return nil, err
		}
		it, err := NewItem(orderID, in.OptionID, name, price, in.Qty)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}

	o, err := New(orderID, userID, couponID, items, now)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders
			(id, user_id, coupon_id, total_cents, discount_cents, final_cents, status, created_at, expired_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.UserID, o.CouponID, o.TotalCents, o.DiscountCents, o.FinalCents,
		string(o.Status), o.CreatedAt, o.ExpiredAt, o.UpdatedAt); err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_option_id, product_name, price_cents, qty, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.OrderID, it.OptionID, it.ProductName, it.PriceCents, it.Qty, it.SubtotalCents); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) Get(ctx context.Context, orderID string) (*Order, error) {
	return scanOrder(s.DB.QueryRow(ctx, `
		SELECT id, user_id, coupon_id, total_cents, discount_cents, final_cents,
		       status, created_at, paid_at, expired_at, updated_at
		FROM orders WHERE id=$1`, orderID))
}

func (s *PGStore) Items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, product_option_id, product_name, price_cents, qty, subtotal_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.OptionID, &it.ProductName,
			&it.PriceCents, &it.Qty, &it.SubtotalCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateGuarded(ctx context.Context, o *Order, expect Status) error {
	var paidAt *time.Time
	if !o.PaidAt.IsZero() {
		paidAt = &o.PaidAt
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders
		SET coupon_id=$2, discount_cents=$3, final_cents=$4, status=$5, paid_at=$6, updated_at=now()
		WHERE id=$1 AND status=$7`,
		o.ID, o.CouponID, o.DiscountCents, o.FinalCents, string(o.Status), paidAt, string(expect))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (s *PGStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND expired_at <= $2
		ORDER BY expired_at LIMIT $3`, string(StatusPending), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) ExpireWithRelease(ctx context.Context, orderID string, now time.Time) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `
		SELECT id, user_id, coupon_id, total_cents, discount_cents, final_cents,
		       status, created_at, paid_at, expired_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return err
	}
	// Re-check under the lock: a concurrent saga may have settled it.
	if o.Status != StatusPending {
		return ErrStatusChanged
	}
	if err := o.Expire(now); err != nil {
		return err
	}

	rows, err := tx.Query(ctx,
		`SELECT product_option_id, qty FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		optionID string
		qty      int
	}
	var lines []line
	for rows.Next() {
		var ln line
		if err := rows.Scan(&ln.optionID, &ln.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, ln)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ln := range lines {
		ct, err := tx.Exec(ctx, `
			UPDATE product_options SET reserved_stock = reserved_stock - $2, updated_at=now()
			WHERE id=$1 AND reserved_stock >= $2`, ln.optionID, ln.qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return inventory.ErrInvalidStock
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`,
		o.ID, string(o.Status)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	var paidAt *time.Time
	err := row.Scan(&o.ID, &o.UserID, &o.CouponID, &o.TotalCents, &o.DiscountCents,
		&o.FinalCents, &status, &o.CreatedAt, &paidAt, &o.ExpiredAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if paidAt != nil {
		o.PaidAt = *paidAt
	}
	return &o, nil
}
