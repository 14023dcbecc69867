// Package postgres provides PostgreSQL implementations of the booking, payee
// and outbox repositories. Every repository can be bound to a transaction
// through WithTx so projection updates and outbox inserts commit together.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BookingRepository implements the booking.Repository interface for PostgreSQL
type BookingRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

func NewBookingRepository(logger *slog.Logger, db *persistence.PostgresDB) booking.Repository {
	return &BookingRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *BookingRepository) WithTx(tx pgx.Tx) booking.Repository {
	return &BookingRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetByID retrieves a booking with its quote and payment projection
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `
		SELECT id, customer_id, payee_id, quote, customer_country, COALESCE(customer_vat_number, ''),
			customer_type, COALESCE(customer_locale, ''), status, payment_summary, version, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var (
		b            booking.Booking
		quoteRaw     []byte
		summaryRaw   []byte
		customerType string
		status       string
	)
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.CustomerID,
		&b.PayeeID,
		&quoteRaw,
		&b.CustomerCountry,
		&b.CustomerVATNumber,
		&customerType,
		&b.CustomerLocale,
		&status,
		&summaryRaw,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrBookingNotFound{BookingID: id}
		}
		r.logger.Error("Failed to get booking", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	b.CustomerType = booking.CustomerType(customerType)
	b.Status = booking.Status(status)

	if len(quoteRaw) > 0 {
		var quote booking.Quote
		if err := json.Unmarshal(quoteRaw, &quote); err != nil {
			return nil, fmt.Errorf("failed to decode booking quote: %w", err)
		}
		b.Quote = &quote
	}
	if len(summaryRaw) > 0 {
		var summary payment.Summary
		if err := json.Unmarshal(summaryRaw, &summary); err != nil {
			return nil, fmt.Errorf("failed to decode booking payment summary: %w", err)
		}
		b.PaymentSummary = &summary
	}

	return &b, nil
}

// UpdatePaymentProjection overwrites the payment summary and, when status is
// not empty, the booking status. A summary older than the stored one is
// skipped so out-of-order commits cannot roll the projection back.
func (r *BookingRepository) UpdatePaymentProjection(ctx context.Context, id uuid.UUID, summary payment.Summary, status booking.Status) error {
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode payment summary: %w", err)
	}

	query := `
		UPDATE bookings
		SET payment_summary = $1, status = COALESCE(NULLIF($2, ''), status), payment_version = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $3 AND payment_version < $4
	`

	result, err := r.querier.Exec(ctx, query, summaryRaw, string(status), id, summary.Version)
	if err != nil {
		r.logger.Error("Failed to update booking payment projection",
			"id", id.String(),
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update booking payment projection: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	var current int
	err = r.querier.QueryRow(ctx, `SELECT payment_version FROM bookings WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrBookingNotFound{BookingID: id}
		}
		return fmt.Errorf("failed to read booking payment version: %w", err)
	}

	r.logger.Info("Skipped stale payment projection",
		"id", id.String(),
		"summary_version", summary.Version,
		"stored_version", current,
	)
	return nil
}
