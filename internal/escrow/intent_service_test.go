package escrow

import (
	"context"
	"testing"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIntentService_CreatePaymentIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates authorization with split and projection", func(t *testing.T) {
		h := newHarness()
		b, p := h.seedBooking(10000, "eur")
		svc := h.intentService(defaultPricing())

		h.gateway.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req gateway.AuthorizationRequest) bool {
			return req.Amount == 12000 &&
				req.Currency == "EUR" &&
				req.IdempotencyKey == payment.IntentKey(b.ID, 1) &&
				req.Metadata["booking_id"] == b.ID.String() &&
				req.Metadata["payee_id"] == p.ID.String()
		})).Return(&gateway.Authorization{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil).Once()

		result, err := svc.CreatePaymentIntent(ctx, IntentRequest{
			BookingID:     b.ID,
			Requester:     Requester{UserID: b.CustomerID, Role: shared.UserRoleCustomer},
			CorrelationID: "corr-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "pi_1", result.AuthorizationID)
		assert.Equal(t, "pi_1_secret", result.ClientSecret)
		assert.False(t, result.Reused)
		assert.Equal(t, int64(12000), result.Summary.TotalWithVAT)
		assert.Equal(t, int64(1800), result.Summary.PlatformCommission)
		assert.Equal(t, int64(10200), result.Summary.ProfessionalPayout)
		assert.Equal(t, int64(2000), result.Summary.VATAmount)

		stored := h.payments.get(t, b.ID)
		assert.Equal(t, payment.StatusPending, stored.Status)
		assert.Equal(t, p.StripeAccountID, stored.PayeeAccountID)
		assert.Equal(t, 1, stored.Attempt)

		assert.Equal(t, booking.StatusPaymentPending, b.Status)
		require.NotNil(t, b.PaymentSummary)
		assert.Equal(t, "pi_1", b.PaymentSummary.AuthorizationID)
		assert.Equal(t, []shared.PaymentEventType{shared.PaymentEventAuthorizationCreated}, h.outbox.eventTypes())
		h.gateway.AssertExpectations(t)
	})

	t.Run("returns the same client secret while pending", func(t *testing.T) {
		h := newHarness()
		b, _ := h.seedBooking(10000, "EUR")
		svc := h.intentService(defaultPricing())
		req := IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}

		h.gateway.On("CreateAuthorization", mock.Anything, mock.Anything).
			Return(&gateway.Authorization{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil).Once()
		h.gateway.On("GetAuthorization", mock.Anything, "pi_1").
			Return(&gateway.Authorization{ID: "pi_1", Status: gateway.AuthorizationRequiresPaymentMethod}, nil)

		first, err := svc.CreatePaymentIntent(ctx, req)
		require.NoError(t, err)
		second, err := svc.CreatePaymentIntent(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, first.ClientSecret, second.ClientSecret)
		assert.True(t, second.Reused)
		h.gateway.AssertNumberOfCalls(t, "CreateAuthorization", 1)
	})

	t.Run("reuses stored secret when processor lookup fails", func(t *testing.T) {
		h := newHarness()
		b, p := h.seedBooking(10000, "EUR")
		r := h.seedRecord(b, p, 12000, "EUR")
		svc := h.intentService(defaultPricing())

		h.gateway.On("GetAuthorization", mock.Anything, r.AuthorizationID).Return(nil, errProcessor)

		result, err := svc.CreatePaymentIntent(ctx, IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}})

		require.NoError(t, err)
		assert.True(t, result.Reused)
		assert.Equal(t, r.ClientSecret, result.ClientSecret)
		h.gateway.AssertNotCalled(t, "CreateAuthorization", mock.Anything, mock.Anything)
	})

	t.Run("replaces a canceled pending authorization", func(t *testing.T) {
		h := newHarness()
		b, p := h.seedBooking(10000, "EUR")
		r := h.seedRecord(b, p, 12000, "EUR")
		svc := h.intentService(defaultPricing())

		h.gateway.On("GetAuthorization", mock.Anything, r.AuthorizationID).
			Return(&gateway.Authorization{ID: r.AuthorizationID, Status: gateway.AuthorizationCanceled}, nil)
		h.gateway.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req gateway.AuthorizationRequest) bool {
			return req.IdempotencyKey == payment.IntentKey(b.ID, 2)
		})).Return(&gateway.Authorization{ID: "pi_2", ClientSecret: "pi_2_secret"}, nil).Once()

		result, err := svc.CreatePaymentIntent(ctx, IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}})

		require.NoError(t, err)
		assert.Equal(t, "pi_2_secret", result.ClientSecret)
		stored := h.payments.get(t, b.ID)
		assert.Equal(t, 2, stored.Attempt)
		assert.Equal(t, payment.StatusPending, stored.Status)
		assert.Equal(t, []shared.PaymentEventType{
			shared.PaymentEventFailed,
			shared.PaymentEventAuthorizationCreated,
		}, h.outbox.eventTypes())
	})

	t.Run("restarts after a failed attempt", func(t *testing.T) {
		h := newHarness()
		b, p := h.seedBooking(10000, "EUR")
		r := h.seedRecord(b, p, 12000, "EUR")
		require.NoError(t, r.Fail("card declined", h.now))
		h.payments.put(r)
		svc := h.intentService(defaultPricing())

		h.gateway.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req gateway.AuthorizationRequest) bool {
			return req.IdempotencyKey == payment.IntentKey(b.ID, 2) && req.Metadata["attempt"] == "2"
		})).Return(&gateway.Authorization{ID: "pi_2", ClientSecret: "pi_2_secret"}, nil).Once()

		_, err := svc.CreatePaymentIntent(ctx, IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}})

		require.NoError(t, err)
		stored := h.payments.get(t, b.ID)
		assert.Equal(t, 2, stored.Attempt)
		assert.Equal(t, "pi_2", stored.AuthorizationID)
		h.gateway.AssertExpectations(t)
	})

	t.Run("falls back to payee currency", func(t *testing.T) {
		h := newHarness()
		b, p := h.seedBooking(10000, "")
		p.PreferredCurrency = "chf"
		svc := h.intentService(defaultPricing())

		h.gateway.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(req gateway.AuthorizationRequest) bool {
			return req.Currency == "CHF"
		})).Return(&gateway.Authorization{ID: "pi_1", ClientSecret: "s"}, nil).Once()

		result, err := svc.CreatePaymentIntent(ctx, IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}})

		require.NoError(t, err)
		assert.Equal(t, "CHF", result.Summary.Currency)
	})

	failures := []struct {
		name    string
		setup   func(h *harness, b *booking.Booking) IntentRequest
		pricing func() PricingConfig
		wantErr error
	}{
		{
			name: "booking not found",
			setup: func(_ *harness, b *booking.Booking) IntentRequest {
				return IntentRequest{BookingID: uuid.New(), Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrNotFound,
		},
		{
			name: "requester is not the customer",
			setup: func(_ *harness, b *booking.Booking) IntentRequest {
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: uuid.New()}}
			},
			wantErr: payment.ErrUnauthorized,
		},
		{
			name: "payment already authorized",
			setup: func(h *harness, b *booking.Booking) IntentRequest {
				p := h.payees.payees[firstPayeeID(h)]
				h.seedAuthorized(b, p, 12000, "EUR")
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrAlreadyProcessed,
		},
		{
			name: "payment already completed",
			setup: func(h *harness, b *booking.Booking) IntentRequest {
				p := h.payees.payees[firstPayeeID(h)]
				h.seedCompleted(b, p, 12000, "EUR")
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrAlreadyProcessed,
		},
		{
			name: "quote not accepted",
			setup: func(_ *harness, b *booking.Booking) IntentRequest {
				b.Quote.Status = booking.QuoteStatusPending
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrInvalidStatus,
		},
		{
			name: "payee cannot accept charges",
			setup: func(h *harness, b *booking.Booking) IntentRequest {
				h.payees.payees[firstPayeeID(h)].ChargesEnabled = false
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrPayeeNotReady,
		},
		{
			name: "payee missing",
			setup: func(h *harness, b *booking.Booking) IntentRequest {
				delete(h.payees.payees, firstPayeeID(h))
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			wantErr: payment.ErrPayeeNotReady,
		},
		{
			name: "total below processor minimum",
			setup: func(_ *harness, b *booking.Booking) IntentRequest {
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			pricing: func() PricingConfig {
				p := defaultPricing()
				p.MinAmount = 50000
				return p
			},
			wantErr: payment.ErrInvalidAmount,
		},
		{
			name: "total above processor maximum",
			setup: func(_ *harness, b *booking.Booking) IntentRequest {
				return IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}}
			},
			pricing: func() PricingConfig {
				p := defaultPricing()
				p.MaxAmount = 1000
				return p
			},
			wantErr: payment.ErrInvalidAmount,
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			b, _ := h.seedBooking(10000, "EUR")
			pricing := defaultPricing()
			if tt.pricing != nil {
				pricing = tt.pricing()
			}
			svc := h.intentService(pricing)

			_, err := svc.CreatePaymentIntent(ctx, tt.setup(h, b))

			assert.ErrorIs(t, err, tt.wantErr)
			h.gateway.AssertNotCalled(t, "CreateAuthorization", mock.Anything, mock.Anything)
			assert.Empty(t, h.outbox.eventTypes())
		})
	}

	t.Run("processor failure leaves no record", func(t *testing.T) {
		h := newHarness()
		b, _ := h.seedBooking(10000, "EUR")
		svc := h.intentService(defaultPricing())

		h.gateway.On("CreateAuthorization", mock.Anything, mock.Anything).Return(nil, errProcessor).Once()

		_, err := svc.CreatePaymentIntent(ctx, IntentRequest{BookingID: b.ID, Requester: Requester{UserID: b.CustomerID}})

		assert.ErrorIs(t, err, payment.ErrProcessorError)
		assert.ErrorIs(t, err, errProcessor)
		_, err = h.payments.GetByBookingID(ctx, b.ID)
		assert.ErrorIs(t, err, payment.ErrRecordNotFound{})
		assert.Equal(t, booking.StatusQuoted, b.Status)
	})
}

func firstPayeeID(h *harness) uuid.UUID {
	for id := range h.payees.payees {
		return id
	}
	return uuid.Nil
}
