package payee

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines payee persistence operations
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Payee, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Payee, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*Payee, error)
	UpdateCapabilities(ctx context.Context, accountID string, caps Capabilities) error
	WithTx(tx pgx.Tx) Repository
}

// ErrPayeeNotFound indicates missing payee. Key is the id or account id used for lookup.
type ErrPayeeNotFound struct {
	Key string
}

func (e ErrPayeeNotFound) Error() string {
	return "payee not found: " + e.Key
}

// Is implements the errors.Is interface for ErrPayeeNotFound
func (e ErrPayeeNotFound) Is(target error) bool {
	t, ok := target.(ErrPayeeNotFound)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}
