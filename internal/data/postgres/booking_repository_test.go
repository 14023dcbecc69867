package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var bookingColumns = []string{
	"id", "customer_id", "payee_id", "quote", "customer_country", "customer_vat_number",
	"customer_type", "customer_locale", "status", "payment_summary", "version", "created_at", "updated_at",
}

func TestBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &BookingRepository{querier: mock, logger: newTestLogger()}

	bookingID := uuid.New()
	customerID := uuid.New()
	payeeID := uuid.New()
	now := time.Now()
	quote := booking.Quote{ID: uuid.New(), ProfessionalID: uuid.New(), Amount: 10000, Currency: "EUR", Status: booking.QuoteStatusAccepted}
	quoteRaw, err := json.Marshal(quote)
	require.NoError(t, err)
	summaryRaw, err := json.Marshal(payment.Summary{Status: payment.StatusPending, Currency: "EUR", TotalWithVAT: 12000, ClientSecret: "pi_1_secret"})
	require.NoError(t, err)

	query := regexp.QuoteMeta("FROM bookings WHERE id = $1")

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(bookingColumns).
			AddRow(bookingID, customerID, &payeeID, quoteRaw, "DE", "", "individual", "de-DE", "payment_pending", summaryRaw, 2, now, now)
		mock.ExpectQuery(query).WithArgs(bookingID).WillReturnRows(rows)

		b, err := repo.GetByID(ctx, bookingID)
		require.NoError(t, err)
		assert.Equal(t, bookingID, b.ID)
		assert.Equal(t, customerID, b.CustomerID)
		require.NotNil(t, b.PayeeID)
		assert.Equal(t, payeeID, *b.PayeeID)
		assert.Equal(t, booking.CustomerTypeIndividual, b.CustomerType)
		assert.Equal(t, booking.StatusPaymentPending, b.Status)
		require.NotNil(t, b.Quote)
		assert.Equal(t, quote.ProfessionalID, b.Quote.ProfessionalID)
		assert.Equal(t, booking.QuoteStatusAccepted, b.Quote.Status)
		require.NotNil(t, b.PaymentSummary)
		assert.Equal(t, "pi_1_secret", b.PaymentSummary.ClientSecret)
		assert.Equal(t, 2, b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without quote or payment", func(t *testing.T) {
		rows := pgxmock.NewRows(bookingColumns).
			AddRow(bookingID, customerID, nil, nil, "FR", "", "business", "", "requested", nil, 1, now, now)
		mock.ExpectQuery(query).WithArgs(bookingID).WillReturnRows(rows)

		b, err := repo.GetByID(ctx, bookingID)
		require.NoError(t, err)
		assert.Nil(t, b.PayeeID)
		assert.Nil(t, b.Quote)
		assert.Nil(t, b.PaymentSummary)
		assert.Equal(t, booking.CustomerTypeBusiness, b.CustomerType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(bookingID).WillReturnError(pgx.ErrNoRows)

		b, err := repo.GetByID(ctx, bookingID)
		assert.Nil(t, b)
		var notFound booking.ErrBookingNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, bookingID, notFound.BookingID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(query).WithArgs(bookingID).WillReturnError(dbErr)

		b, err := repo.GetByID(ctx, bookingID)
		assert.Nil(t, b)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to get booking")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt quote", func(t *testing.T) {
		rows := pgxmock.NewRows(bookingColumns).
			AddRow(bookingID, customerID, nil, []byte(`{"amount":`), "DE", "", "individual", "", "quoted", nil, 1, now, now)
		mock.ExpectQuery(query).WithArgs(bookingID).WillReturnRows(rows)

		b, err := repo.GetByID(ctx, bookingID)
		assert.Nil(t, b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode booking quote")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_UpdatePaymentProjection(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &BookingRepository{querier: mock, logger: newTestLogger()}
	bookingID := uuid.New()
	summary := payment.Summary{Status: payment.StatusAuthorized, Currency: "EUR", TotalWithVAT: 12000, ChargeID: "ch_1", Version: 3}
	summaryRaw, err := json.Marshal(summary)
	require.NoError(t, err)

	query := regexp.QuoteMeta("UPDATE bookings SET payment_summary = $1, status = COALESCE(NULLIF($2, ''), status), payment_version = $4")
	versionQuery := regexp.QuoteMeta("SELECT payment_version FROM bookings WHERE id = $1")

	t.Run("with status", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(summaryRaw, "booked", bookingID, 3).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdatePaymentProjection(ctx, bookingID, summary, booking.StatusBooked)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("summary only", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(summaryRaw, "", bookingID, 3).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdatePaymentProjection(ctx, bookingID, summary, "")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale summary is skipped", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(summaryRaw, "booked", bookingID, 3).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(versionQuery).
			WithArgs(bookingID).
			WillReturnRows(pgxmock.NewRows([]string{"payment_version"}).AddRow(4))

		err := repo.UpdatePaymentProjection(ctx, bookingID, summary, booking.StatusBooked)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(summaryRaw, "booked", bookingID, 3).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(versionQuery).
			WithArgs(bookingID).
			WillReturnError(pgx.ErrNoRows)

		err := repo.UpdatePaymentProjection(ctx, bookingID, summary, booking.StatusBooked)
		assert.ErrorIs(t, err, booking.ErrBookingNotFound{BookingID: bookingID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("deadlock detected")
		mock.ExpectExec(query).
			WithArgs(summaryRaw, "refunded", bookingID, 3).
			WillReturnError(dbErr)

		err := repo.UpdatePaymentProjection(ctx, bookingID, summary, booking.StatusRefunded)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to update booking payment projection")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_WithTx(t *testing.T) {
	repo := &BookingRepository{querier: nil, logger: slog.Default()}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	bookingRepo, ok := txRepo.(*BookingRepository)
	require.True(t, ok)
	assert.Equal(t, mockTx, bookingRepo.querier)
}
