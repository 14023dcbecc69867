package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/payee"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/platform/dedup"
	"github.com/google/uuid"
)

type eventHandler func(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error

// WebhookServiceImpl implements the WebhookService interface
type WebhookServiceImpl struct {
	verifier gateway.EventVerifier
	dedup    dedup.Deduplicator
	payments payment.Repository
	payees   payee.Repository
	recorder *PaymentRecorder
	handlers map[gateway.EventKind]eventHandler
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookService(
	logger *slog.Logger,
	verifier gateway.EventVerifier,
	deduplicator dedup.Deduplicator,
	payments payment.Repository,
	payees payee.Repository,
	recorder *PaymentRecorder,
) WebhookService {
	s := &WebhookServiceImpl{
		verifier: verifier,
		dedup:    deduplicator,
		payments: payments,
		payees:   payees,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
	s.handlers = map[gateway.EventKind]eventHandler{
		gateway.EventUnknown:                s.ignore,
		gateway.EventAuthorizationSucceeded: s.authorizationSucceeded,
		gateway.EventAuthorizationFailed:    s.authorizationFailed,
		gateway.EventAuthorizationCanceled:  s.authorizationCanceled,
		gateway.EventChargeCaptured:         s.chargeCaptured,
		gateway.EventChargeRefunded:         s.chargeRefunded,
		gateway.EventDisputeOpened:          s.disputeOpened,
		gateway.EventDisputeClosed:          s.disputeClosed,
		gateway.EventTransferCreated:        s.transferCreated,
		gateway.EventTransferReversed:       s.transferReversed,
		gateway.EventAccountUpdated:         s.accountUpdated,
		gateway.EventAccountDisconnected:    s.accountDisconnected,
		gateway.EventPayoutPaid:             s.payoutPaid,
	}
	return s
}

func (s *WebhookServiceImpl) Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	evt, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupportedEvent) {
			// Authentic but undecodable; redelivery would fail the same way.
			s.logger.Warn("Acknowledging undecodable webhook event", "error", err)
			return &WebhookResult{}, nil
		}
		return nil, err
	}

	logger := s.logger.With("event_id", evt.ID, "event_type", evt.Type)

	seen, err := s.dedup.Seen(ctx, evt.ID)
	if err != nil {
		logger.Warn("Dedup lookup failed, relying on status guards", "error", err)
	}
	if seen {
		logger.Info("Duplicate webhook event acknowledged")
		return &WebhookResult{EventID: evt.ID, Duplicate: true}, nil
	}

	handler, ok := s.handlers[evt.Kind]
	if !ok {
		handler = s.ignore
	}
	if err := handler(ctx, logger, evt); err != nil {
		logger.Error("Webhook handler failed", "kind", string(evt.Kind), "error", err)
		return nil, err
	}

	if err := s.dedup.Mark(ctx, evt.ID); err != nil {
		logger.Warn("Failed to mark webhook event as processed", "error", err)
	}
	return &WebhookResult{EventID: evt.ID}, nil
}

func (s *WebhookServiceImpl) ignore(_ context.Context, logger *slog.Logger, evt *gateway.Event) error {
	logger.Debug("Ignoring webhook event", "kind", string(evt.Kind))
	return nil
}

// mutate applies fn to the record located by lookup. Events for payments this
// service does not know are acknowledged without changes.
func (s *WebhookServiceImpl) mutate(ctx context.Context, logger *slog.Logger, lookup func() (*payment.Record, error), fn MutateFunc) error {
	r, err := lookup()
	if err != nil {
		if errors.Is(err, payment.ErrRecordNotFound{}) {
			logger.Info("No payment record for webhook event")
			return nil
		}
		return err
	}

	_, err = s.recorder.Mutate(ctx, r.BookingID, fn)
	return err
}

func (s *WebhookServiceImpl) byMetadata(ctx context.Context, metadata map[string]string) (*payment.Record, bool, error) {
	raw, ok := metadata["booking_id"]
	if !ok {
		return nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false, nil
	}
	r, err := s.payments.GetByBookingID(ctx, id)
	return r, true, err
}

func (s *WebhookServiceImpl) findAuthorization(ctx context.Context, p gateway.AuthorizationPayload) func() (*payment.Record, error) {
	return func() (*payment.Record, error) {
		if r, ok, err := s.byMetadata(ctx, p.Metadata); ok {
			return r, err
		}
		return s.payments.FindByAuthorizationID(ctx, p.AuthorizationID)
	}
}

func (s *WebhookServiceImpl) findCharge(ctx context.Context, authorizationID, chargeID string, metadata map[string]string) func() (*payment.Record, error) {
	return func() (*payment.Record, error) {
		if r, ok, err := s.byMetadata(ctx, metadata); ok {
			return r, err
		}
		if authorizationID != "" {
			return s.payments.FindByAuthorizationID(ctx, authorizationID)
		}
		return s.payments.FindByChargeID(ctx, chargeID)
	}
}

func (s *WebhookServiceImpl) findTransfer(ctx context.Context, p gateway.TransferPayload) func() (*payment.Record, error) {
	return func() (*payment.Record, error) {
		if r, ok, err := s.byMetadata(ctx, p.Metadata); ok {
			return r, err
		}
		r, err := s.payments.FindByTransferID(ctx, p.TransferID)
		if errors.Is(err, payment.ErrRecordNotFound{}) && p.SourceChargeID != "" {
			return s.payments.FindByChargeID(ctx, p.SourceChargeID)
		}
		return r, err
	}
}

func payloadAs[T any](evt *gateway.Event) (T, error) {
	p, ok := evt.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s carries %T", gateway.ErrUnsupportedEvent, evt.Kind, evt.Payload)
	}
	return p, nil
}

func (s *WebhookServiceImpl) authorizationSucceeded(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.AuthorizationPayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findAuthorization(ctx, p), func(r *payment.Record) (*Change, error) {
		if r.Status != payment.StatusPending || r.AuthorizationID != p.AuthorizationID {
			return nil, nil
		}
		if err := r.Authorize(p.ChargeID, s.now()); err != nil {
			return nil, err
		}
		return &Change{Event: shared.PaymentEventAuthorized, BookingStatus: booking.StatusBooked, CorrelationID: evt.ID}, nil
	})
}

func (s *WebhookServiceImpl) authorizationFailed(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.AuthorizationPayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findAuthorization(ctx, p), func(r *payment.Record) (*Change, error) {
		if r.AuthorizationID != p.AuthorizationID || !r.Status.CanTransitionTo(payment.StatusFailed) {
			return nil, nil
		}
		reason := p.FailureMessage
		if reason == "" {
			reason = "authorization failed"
		}
		if err := r.Fail(reason, s.now()); err != nil {
			return nil, err
		}
		return &Change{Event: shared.PaymentEventFailed, BookingStatus: booking.StatusPaymentPending, CorrelationID: evt.ID}, nil
	})
}

func (s *WebhookServiceImpl) authorizationCanceled(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.AuthorizationPayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findAuthorization(ctx, p), func(r *payment.Record) (*Change, error) {
		if r.AuthorizationID != p.AuthorizationID {
			return nil, nil
		}
		switch r.Status {
		case payment.StatusAuthorized:
			if err := r.CancelAuthorization("authorization canceled by processor", s.now()); err != nil {
				return nil, err
			}
			return &Change{Event: shared.PaymentEventCancelled, BookingStatus: booking.StatusCancelled, CorrelationID: evt.ID}, nil
		case payment.StatusPending:
			if err := r.Fail("authorization canceled before confirmation", s.now()); err != nil {
				return nil, err
			}
			return &Change{Event: shared.PaymentEventFailed, BookingStatus: booking.StatusPaymentPending, CorrelationID: evt.ID}, nil
		}
		return nil, nil
	})
}

func (s *WebhookServiceImpl) chargeCaptured(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.ChargePayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findCharge(ctx, p.AuthorizationID, p.ChargeID, p.Metadata), func(r *payment.Record) (*Change, error) {
		if r.Status != payment.StatusAuthorized || r.CapturedAt != nil {
			return nil, nil
		}
		if err := r.MarkCaptured(p.ChargeID, s.now()); err != nil {
			return nil, err
		}
		return &Change{Event: shared.PaymentEventCaptured, CorrelationID: evt.ID}, nil
	})
}

func (s *WebhookServiceImpl) chargeRefunded(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.ChargePayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findCharge(ctx, p.AuthorizationID, p.ChargeID, p.Metadata), func(r *payment.Record) (*Change, error) {
		if !r.ApplyProcessorRefund(p.AmountRefunded, s.now()) {
			return nil, nil
		}
		event := shared.PaymentEventPartiallyRefunded
		if r.Status == payment.StatusRefunded {
			event = shared.PaymentEventRefunded
		}
		return &Change{Event: event, BookingStatus: booking.StatusRefunded, CorrelationID: evt.ID}, nil
	})
}

func (s *WebhookServiceImpl) disputeOpened(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.DisputePayload](evt)
	if err != nil {
		return err
	}
	logger = logger.With("dispute_id", p.DisputeID)
	return s.mutate(ctx, logger, s.findCharge(ctx, p.AuthorizationID, p.ChargeID, nil), func(r *payment.Record) (*Change, error) {
		if !r.OpenDispute(p.DisputeID, p.Reason, p.Amount, p.Currency, s.now()) {
			return nil, nil
		}
		logger.Warn("Dispute opened, payment marked refunded", "amount", p.Amount, "currency", p.Currency, "reason", p.Reason)
		return &Change{Event: shared.PaymentEventDisputeOpened, BookingStatus: booking.StatusRefunded, CorrelationID: evt.ID}, nil
	})
}

func (s *WebhookServiceImpl) disputeClosed(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.DisputePayload](evt)
	if err != nil {
		return err
	}
	logger = logger.With("dispute_id", p.DisputeID, "dispute_status", string(p.Status))
	return s.mutate(ctx, logger, s.findCharge(ctx, p.AuthorizationID, p.ChargeID, nil), func(r *payment.Record) (*Change, error) {
		if !r.ResolveDispute(p.DisputeID, p.Won(), s.now()) {
			return nil, nil
		}
		change := &Change{Event: shared.PaymentEventDisputeClosed, CorrelationID: evt.ID}
		if p.Won() {
			change.BookingStatus = booking.StatusCompleted
		}
		logger.Info("Dispute closed")
		return change, nil
	})
}

func (s *WebhookServiceImpl) transferCreated(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.TransferPayload](evt)
	if err != nil {
		return err
	}
	return s.mutate(ctx, logger, s.findTransfer(ctx, p), func(r *payment.Record) (*Change, error) {
		if !r.RecordTransfer(p.TransferID, s.now()) {
			return nil, nil
		}
		return &Change{Event: shared.PaymentEventTransferRecorded, CorrelationID: evt.ID}, nil
	})
}

// transferReversed is informational. The refund that started the reversal
// already booked it on the record.
func (s *WebhookServiceImpl) transferReversed(_ context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.TransferPayload](evt)
	if err != nil {
		return err
	}
	logger.Info("Transfer reversed",
		"transfer_id", p.TransferID,
		"amount_reversed", p.AmountReversed,
		"currency", p.Currency,
	)
	return nil
}

func (s *WebhookServiceImpl) accountUpdated(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.AccountPayload](evt)
	if err != nil {
		return err
	}

	caps := payee.Capabilities{
		OnboardingCompleted: p.DetailsSubmitted,
		ChargesEnabled:      p.ChargesEnabled,
		PayoutsEnabled:      p.PayoutsEnabled,
		AccountStatus:       accountStatus(p),
	}
	return s.updateCapabilities(ctx, logger, p.AccountID, caps)
}

func (s *WebhookServiceImpl) accountDisconnected(ctx context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.AccountPayload](evt)
	if err != nil {
		return err
	}
	return s.updateCapabilities(ctx, logger, p.AccountID, payee.Disconnected)
}

func (s *WebhookServiceImpl) updateCapabilities(ctx context.Context, logger *slog.Logger, accountID string, caps payee.Capabilities) error {
	if err := s.payees.UpdateCapabilities(ctx, accountID, caps); err != nil {
		if errors.Is(err, payee.ErrPayeeNotFound{}) {
			logger.Info("No payee for connected account", "account_id", accountID)
			return nil
		}
		return err
	}

	logger.Info("Payee capabilities updated",
		"account_id", accountID,
		"charges_enabled", caps.ChargesEnabled,
		"payouts_enabled", caps.PayoutsEnabled,
		"account_status", string(caps.AccountStatus),
	)
	return nil
}

func (s *WebhookServiceImpl) payoutPaid(_ context.Context, logger *slog.Logger, evt *gateway.Event) error {
	p, err := payloadAs[gateway.PayoutPayload](evt)
	if err != nil {
		return err
	}
	logger.Info("Payout paid",
		"account_id", evt.Account,
		"payout_id", p.PayoutID,
		"amount", p.Amount,
		"currency", p.Currency,
	)
	return nil
}

func accountStatus(p gateway.AccountPayload) payee.AccountStatus {
	switch {
	case p.Restricted:
		return payee.AccountStatusRestricted
	case p.ChargesEnabled && p.PayoutsEnabled:
		return payee.AccountStatusActive
	default:
		return payee.AccountStatusPending
	}
}
