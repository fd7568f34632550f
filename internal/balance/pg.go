package balance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore backs the ledger with a users row plus an append-only
// user_balance_change_logs table. The balance update is conditioned on
// the version column; zero rows affected means another writer won.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Get(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.DB.QueryRow(ctx,
		`SELECT id, balance_cents, version, updated_at FROM users WHERE id=$1`, userID).
		Scan(&u.ID, &u.BalanceCents, &u.Version, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) Apply(ctx context.Context, u *User, entry *ChangeLog) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE users SET balance_cents=$2, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$3`,
		u.ID, u.BalanceCents, u.Version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_balance_change_logs
			(id, user_id, amount_cents, before_cents, after_cents, code, note, ref_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.UserID, entry.AmountCents, entry.BeforeCents, entry.AfterCents,
		string(entry.Code), entry.Note, entry.RefID, entry.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Logs(ctx context.Context, userID string) ([]ChangeLog, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, amount_cents, before_cents, after_cents, code, note, ref_id, created_at
		FROM user_balance_change_logs WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangeLog
	for rows.Next() {
		var e ChangeLog
		var code string
		if err := rows.Scan(&e.ID, &e.UserID, &e.AmountCents, &e.BeforeCents, &e.AfterCents,
			&code, &e.Note, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Code = ChangeCode(code)
		out = append(out, e)
	}
	return out, rows.Err()
}
