package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/platform/vat"
	"github.com/shopspring/decimal"
)

// PricingConfig holds the commercial parameters applied when opening an authorization
type PricingConfig struct {
	CommissionPercent decimal.Decimal
	MinAmount         int64 // Processor minimum charge, minor units
	MaxAmount         int64 // Processor maximum charge, minor units
	DefaultCurrency   string
}

// IntentServiceImpl implements the IntentService interface
type IntentServiceImpl struct {
	bookings booking.Repository
	payments payment.Repository
	payees   *PayeeResolver
	gateway  gateway.Gateway
	vat      vat.Calculator
	recorder *PaymentRecorder
	pricing  PricingConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewIntentService(
	logger *slog.Logger,
	bookings booking.Repository,
	payments payment.Repository,
	payees *PayeeResolver,
	gw gateway.Gateway,
	calculator vat.Calculator,
	recorder *PaymentRecorder,
	pricing PricingConfig,
) IntentService {
	return &IntentServiceImpl{
		bookings: bookings,
		payments: payments,
		payees:   payees,
		gateway:  gw,
		vat:      calculator,
		recorder: recorder,
		pricing:  pricing,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *IntentServiceImpl) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	logger := s.logger.With("booking_id", req.BookingID, "correlation_id", req.CorrelationID)

	b, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound{}) {
			return nil, fmt.Errorf("%w: %w", payment.ErrNotFound, err)
		}
		return nil, err
	}
	if !b.IsCustomer(req.Requester.UserID) {
		return nil, payment.ErrUnauthorized
	}

	existing, err := s.payments.GetByBookingID(ctx, b.ID)
	if err != nil && !errors.Is(err, payment.ErrRecordNotFound{}) {
		return nil, err
	}
	if existing != nil {
		if result, ok, err := s.reuse(ctx, logger, existing, req.CorrelationID); err != nil || ok {
			return result, err
		}
	}

	quote, ok := b.AcceptedQuote()
	if !ok {
		return nil, fmt.Errorf("%w: booking has no accepted quote", payment.ErrInvalidStatus)
	}

	resolution, err := s.payees.Resolve(ctx, b)
	if err != nil {
		return nil, err
	}
	p, ok := resolution.Payee()
	if !ok || !p.ReadyForPayments() {
		return nil, payment.ErrPayeeNotReady
	}

	currency := payment.ResolveCurrency(quote.Currency, p.PreferredCurrency, b.CustomerLocale, s.pricing.DefaultCurrency)
	if currency == "" {
		return nil, fmt.Errorf("%w: no settlement currency", payment.ErrInvalidAmount)
	}
	if quote.Amount <= 0 {
		return nil, fmt.Errorf("%w: quote amount must be positive", payment.ErrInvalidAmount)
	}

	tax := s.vat.Calculate(vat.Request{
		Amount:            quote.Amount,
		CustomerCountry:   b.CustomerCountry,
		CustomerVATNumber: b.CustomerVATNumber,
		PayeeCountry:      p.Country,
		Business:          b.CustomerType == booking.CustomerTypeBusiness,
	})
	if tax.Total < s.pricing.MinAmount || (s.pricing.MaxAmount > 0 && tax.Total > s.pricing.MaxAmount) {
		return nil, fmt.Errorf("%w: total %d %s outside processor limits", payment.ErrInvalidAmount, tax.Total, currency)
	}

	split := payment.SplitTotal(tax.Total, s.pricing.CommissionPercent)
	pricing := payment.Pricing{
		Currency:           currency,
		Amount:             quote.Amount,
		VATAmount:          tax.VATAmount,
		VATRate:            tax.VATRate.String(),
		TotalWithVAT:       tax.Total,
		PlatformCommission: split.PlatformCommission,
		ProfessionalPayout: split.ProfessionalPayout,
	}

	attempt := 1
	if existing != nil {
		attempt = existing.Attempt + 1
	}

	auth, err := s.gateway.CreateAuthorization(ctx, gateway.AuthorizationRequest{
		Amount:      tax.Total,
		Currency:    currency,
		CustomerID:  b.CustomerID.String(),
		Description: "Booking " + b.ID.String(),
		Metadata: map[string]string{
			"booking_id": b.ID.String(),
			"payee_id":   p.ID.String(),
			"attempt":    strconv.Itoa(attempt),
		},
		IdempotencyKey: payment.IntentKey(b.ID, attempt),
	})
	if err != nil {
		logger.Error("Failed to create authorization", "attempt", attempt, "error", err)
		return nil, fmt.Errorf("%w: %w", payment.ErrProcessorError, err)
	}

	now := s.now()
	authorization := payment.Authorization{ID: auth.ID, ClientSecret: auth.ClientSecret}

	record := existing
	if record == nil {
		record = payment.NewRecord(b.ID, b.CustomerID, p.ID, p.StripeAccountID, pricing, authorization, now)
	} else if err := record.Restart(p.ID, p.StripeAccountID, pricing, authorization, now); err != nil {
		return nil, err
	}

	change := Change{
		Event:         shared.PaymentEventAuthorizationCreated,
		BookingStatus: booking.StatusPaymentPending,
		CorrelationID: req.CorrelationID,
	}
	if err := s.recorder.Commit(ctx, record, change); err != nil {
		return nil, err
	}

	logger.Info("Authorization created",
		"authorization_id", auth.ID,
		"attempt", record.Attempt,
		"currency", currency,
		"total_with_vat", tax.Total,
		"platform_commission", split.PlatformCommission,
		"professional_payout", split.ProfessionalPayout,
	)

	return &IntentResult{
		AuthorizationID: record.AuthorizationID,
		ClientSecret:    record.ClientSecret,
		Summary:         record.Summary(),
	}, nil
}

// reuse decides what an existing record means for a new intent request.
// It reports true when the result is final.
func (s *IntentServiceImpl) reuse(ctx context.Context, logger *slog.Logger, r *payment.Record, correlationID string) (*IntentResult, bool, error) {
	switch {
	case r.Status.AllowsNewAuthorization():
		return nil, false, nil
	case r.Status != payment.StatusPending:
		return nil, true, payment.ErrAlreadyProcessed
	}

	if r.ClientSecret != "" {
		auth, err := s.gateway.GetAuthorization(ctx, r.AuthorizationID)
		if err != nil {
			logger.Warn("Could not refresh pending authorization, reusing stored secret", "error", err)
		}
		if err != nil || auth.Status != gateway.AuthorizationCanceled {
			logger.Info("Reusing pending authorization", "authorization_id", r.AuthorizationID)
			return &IntentResult{
				AuthorizationID: r.AuthorizationID,
				ClientSecret:    r.ClientSecret,
				Reused:          true,
				Summary:         r.Summary(),
			}, true, nil
		}
	}

	// The stored authorization is unusable; close it so a new attempt can start.
	if err := r.Fail("authorization no longer usable", s.now()); err != nil {
		return nil, true, err
	}
	change := Change{Event: shared.PaymentEventFailed, CorrelationID: correlationID}
	if err := s.recorder.Commit(ctx, r, change); err != nil {
		return nil, true, err
	}
	return nil, false, nil
}
