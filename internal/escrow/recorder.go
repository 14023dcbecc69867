package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/outbox"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxMutateAttempts = 3

// Change describes what a committed mutation means outside the ledger
type Change struct {
	Event         shared.PaymentEventType
	BookingStatus booking.Status // Empty leaves the booking status untouched
	CorrelationID string
}

// MutateFunc applies a change to a freshly loaded record.
// A nil Change means the record is already in the target state.
type MutateFunc func(r *payment.Record) (*Change, error)

// PaymentRecorder is the single write path for ledger records
type PaymentRecorder struct {
	payments payment.Repository
	bookings booking.Repository
	outbox   outbox.Repository
	db       TxRunner
	logger   *slog.Logger
	now      func() time.Time
}

func NewPaymentRecorder(logger *slog.Logger, db TxRunner, payments payment.Repository, bookings booking.Repository, outboxRepo outbox.Repository) *PaymentRecorder {
	return &PaymentRecorder{
		payments: payments,
		bookings: bookings,
		outbox:   outboxRepo,
		db:       db,
		logger:   logger,
		now:      time.Now,
	}
}

// Commit saves the record, then refreshes the booking projection and queues
// the lifecycle event in one transaction.
func (p *PaymentRecorder) Commit(ctx context.Context, r *payment.Record, change Change) error {
	if err := p.payments.Save(ctx, r); err != nil {
		return fmt.Errorf("failed to save payment record: %w", err)
	}

	msg, err := outbox.NewMessage(payment.NewLifecycleEvent(change.Event, r, change.CorrelationID, p.now()))
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}

	err = p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := p.bookings.WithTx(tx).UpdatePaymentProjection(ctx, r.BookingID, r.Summary(), change.BookingStatus); err != nil {
			return fmt.Errorf("failed to refresh payment projection: %w", err)
		}
		if err := p.outbox.WithTx(tx).Create(ctx, msg); err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Ledger record saved but projection failed",
			"booking_id", r.BookingID,
			"status", string(r.Status),
			"event_type", string(change.Event),
			"error", err,
		)
		return err
	}

	p.logger.Info("Payment record committed",
		"booking_id", r.BookingID,
		"status", string(r.Status),
		"event_type", string(change.Event),
		"version", r.Version,
		"correlation_id", change.CorrelationID,
	)
	return nil
}

// Mutate loads the record for bookingID, applies fn and commits the result.
// A concurrent writer causes a reload and a fresh attempt.
func (p *PaymentRecorder) Mutate(ctx context.Context, bookingID uuid.UUID, fn MutateFunc) (*payment.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		r, err := p.payments.GetByBookingID(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		change, err := fn(r)
		if err != nil {
			return nil, err
		}
		if change == nil {
			return r, nil
		}

		err = p.Commit(ctx, r, *change)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, payment.ErrConcurrentModification{}) {
			return nil, err
		}

		p.logger.Warn("Concurrent payment record update, retrying",
			"booking_id", bookingID,
			"attempt", attempt,
		)
		lastErr = err
	}
	return nil, lastErr
}
