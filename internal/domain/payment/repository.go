package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists ledger records, one per booking.
// Save is a compare-and-set on Version and bumps it on success.
type Repository interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*Record, error)
	FindByAuthorizationID(ctx context.Context, authorizationID string) (*Record, error)
	FindByChargeID(ctx context.Context, chargeID string) (*Record, error)
	FindByTransferID(ctx context.Context, transferID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}
