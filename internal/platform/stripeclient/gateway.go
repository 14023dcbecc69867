// Package stripeclient adapts the Stripe API to the gateway interfaces used by the escrow coordinators.
package stripeclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type chargeAPI interface {
	Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

type transferAPI interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

type transferReversalAPI interface {
	New(params *stripe.TransferReversalParams) (*stripe.TransferReversal, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// Gateway implements gateway.Gateway on top of PaymentIntents with manual capture
// and separate charges and transfers to connected accounts.
type Gateway struct {
	intents   paymentIntentAPI
	charges   chargeAPI
	transfers transferAPI
	reversals transferReversalAPI
	refunds   refundAPI
	logger    *slog.Logger
}

func NewGateway(logger *slog.Logger, secretKey string) *Gateway {
	api := client.New(secretKey, nil)
	return &Gateway{
		intents:   api.PaymentIntents,
		charges:   api.Charges,
		transfers: api.Transfers,
		reversals: api.TransferReversals,
		refunds:   api.Refunds,
		logger:    logger,
	}
}

func (g *Gateway) CreateAuthorization(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if group := req.Metadata["booking_id"]; group != "" {
		params.TransferGroup = stripe.String(group)
	}
	if req.CustomerID != "" {
		params.AddMetadata("customer_id", req.CustomerID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger.Error("Failed to create payment intent",
			"idempotency_key", req.IdempotencyKey,
			"amount", req.Amount,
			"currency", req.Currency,
			"error", err,
		)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return toAuthorization(pi), nil
}

func (g *Gateway) GetAuthorization(ctx context.Context, authorizationID string) (*gateway.Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(authorizationID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", authorizationID, err)
	}

	return toAuthorization(pi), nil
}

func (g *Gateway) CaptureAuthorization(ctx context.Context, authorizationID, idempotencyKey string) (*gateway.Capture, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.intents.Capture(authorizationID, params)
	if err != nil {
		g.logger.Error("Failed to capture payment intent",
			"payment_intent_id", authorizationID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to capture payment intent %s: %w", authorizationID, err)
	}

	return &gateway.Capture{
		AuthorizationID: pi.ID,
		ChargeID:        latestChargeID(pi),
		AmountReceived:  pi.AmountReceived,
		Currency:        strings.ToUpper(string(pi.Currency)),
	}, nil
}

func (g *Gateway) CancelAuthorization(ctx context.Context, authorizationID, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.intents.Cancel(authorizationID, params); err != nil {
		return fmt.Errorf("failed to cancel payment intent %s: %w", authorizationID, err)
	}
	return nil
}

// GetChargeSettlement reads the balance transaction of a charge, which carries
// the amount and currency actually credited to the platform.
func (g *Gateway) GetChargeSettlement(ctx context.Context, chargeID string) (*gateway.ChargeSettlement, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	params.AddExpand("balance_transaction")

	ch, err := g.charges.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve charge %s: %w", chargeID, err)
	}

	settlement := &gateway.ChargeSettlement{
		ChargeID: ch.ID,
		Amount:   ch.Amount,
		Currency: strings.ToUpper(string(ch.Currency)),
	}
	if bt := ch.BalanceTransaction; bt != nil && bt.Currency != "" {
		settlement.Amount = bt.Amount
		settlement.Currency = strings.ToUpper(string(bt.Currency))
	}

	return settlement, nil
}

func (g *Gateway) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.DestinationAccount),
	}
	if req.SourceChargeID != "" {
		params.SourceTransaction = stripe.String(req.SourceChargeID)
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	tr, err := g.transfers.New(params)
	if err != nil {
		g.logger.Error("Failed to create transfer",
			"destination", req.DestinationAccount,
			"amount", req.Amount,
			"currency", req.Currency,
			"error", err,
		)
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	out := &gateway.Transfer{
		ID:       tr.ID,
		Amount:   tr.Amount,
		Currency: strings.ToUpper(string(tr.Currency)),
	}
	if tr.DestinationPayment != nil {
		out.DestinationPaymentID = tr.DestinationPayment.ID
	}
	return out, nil
}

func (g *Gateway) CreateTransferReversal(ctx context.Context, req gateway.TransferReversalRequest) (*gateway.TransferReversal, error) {
	params := &stripe.TransferReversalParams{
		ID:     stripe.String(req.TransferID),
		Amount: stripe.Int64(req.Amount),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	rev, err := g.reversals.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to reverse transfer %s: %w", req.TransferID, err)
	}

	return &gateway.TransferReversal{ID: rev.ID, Amount: rev.Amount}, nil
}

func (g *Gateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.AuthorizationID),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := refundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	rf, err := g.refunds.New(params)
	if err != nil {
		g.logger.Error("Failed to create refund",
			"payment_intent_id", req.AuthorizationID,
			"amount", req.Amount,
			"error", err,
		)
		return nil, fmt.Errorf("failed to create refund for %s: %w", req.AuthorizationID, err)
	}

	return &gateway.Refund{
		ID:       rf.ID,
		Amount:   rf.Amount,
		Currency: strings.ToUpper(string(rf.Currency)),
		Status:   string(rf.Status),
	}, nil
}

// refundReason maps free-text reasons onto the values the refunds endpoint accepts.
// Anything else is kept only in metadata.
func refundReason(reason string) string {
	switch r := stripe.RefundReason(strings.ToLower(strings.TrimSpace(reason))); r {
	case stripe.RefundReasonDuplicate, stripe.RefundReasonFraudulent, stripe.RefundReasonRequestedByCustomer:
		return string(r)
	}
	return ""
}

func toAuthorization(pi *stripe.PaymentIntent) *gateway.Authorization {
	return &gateway.Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gateway.AuthorizationStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ChargeID:     latestChargeID(pi),
	}
}

func latestChargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge == nil {
		return ""
	}
	return pi.LatestCharge.ID
}

var _ gateway.Gateway = (*Gateway)(nil)
