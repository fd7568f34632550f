package balance

import "context"

// Store persists users and their audit trail. Apply writes the new
// balance and the log row in one unit of work, conditioned on the
// version the caller read; a lost race is ErrVersionConflict and
// nothing is written.
type Store interface {
	Get(ctx context.Context, userID string) (*User, error)
	Apply(ctx context.Context, u *User, entry *ChangeLog) error
	Logs(ctx context.Context, userID string) ([]ChangeLog, error)
}
