package stripeclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// EventVerifier authenticates webhook bodies with the endpoint signing secret
// and decodes them into gateway events.
type EventVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewEventVerifier(secret string, tolerance time.Duration) *EventVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &EventVerifier{secret: secret, tolerance: tolerance}
}

// VerifyEvent returns gateway.ErrInvalidSignature when the signature header is
// missing, stale or does not match the raw payload.
func (v *EventVerifier) VerifyEvent(payload []byte, signature string) (*gateway.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, gateway.ErrInvalidSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}

	return DecodeEvent(&evt)
}

type decoder func(evt *stripe.Event) (any, error)

var eventKinds = map[string]gateway.EventKind{
	"payment_intent.amount_capturable_updated": gateway.EventAuthorizationSucceeded,
	"payment_intent.succeeded":                 gateway.EventAuthorizationSucceeded,
	"payment_intent.payment_failed":            gateway.EventAuthorizationFailed,
	"payment_intent.canceled":                  gateway.EventAuthorizationCanceled,
	"charge.captured":                          gateway.EventChargeCaptured,
	"charge.refunded":                          gateway.EventChargeRefunded,
	"charge.dispute.created":                   gateway.EventDisputeOpened,
	"charge.dispute.closed":                    gateway.EventDisputeClosed,
	"transfer.created":                         gateway.EventTransferCreated,
	"transfer.reversed":                        gateway.EventTransferReversed,
	"account.updated":                          gateway.EventAccountUpdated,
	"account.application.deauthorized":         gateway.EventAccountDisconnected,
	"payout.paid":                              gateway.EventPayoutPaid,
}

var decoders = map[gateway.EventKind]decoder{
	gateway.EventAuthorizationSucceeded: decodeAuthorization,
	gateway.EventAuthorizationFailed:    decodeAuthorization,
	gateway.EventAuthorizationCanceled:  decodeAuthorization,
	gateway.EventChargeCaptured:         decodeCharge,
	gateway.EventChargeRefunded:         decodeCharge,
	gateway.EventDisputeOpened:          decodeDispute,
	gateway.EventDisputeClosed:          decodeDispute,
	gateway.EventTransferCreated:        decodeTransfer,
	gateway.EventTransferReversed:       decodeTransfer,
	gateway.EventAccountUpdated:         decodeAccount,
	gateway.EventAccountDisconnected:    decodeDisconnect,
	gateway.EventPayoutPaid:             decodePayout,
}

// DecodeEvent maps a Stripe event onto a gateway event kind and typed payload.
// Unmapped types decode to EventUnknown with a nil payload.
func DecodeEvent(evt *stripe.Event) (*gateway.Event, error) {
	out := &gateway.Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Kind:    gateway.EventUnknown,
		Account: evt.Account,
	}

	kind, ok := eventKinds[out.Type]
	if !ok {
		return out, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data object", gateway.ErrUnsupportedEvent, out.Type)
	}

	payload, err := decoders[kind](evt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", gateway.ErrUnsupportedEvent, out.Type, err)
	}

	out.Kind = kind
	out.Payload = payload
	return out, nil
}

func decodeAuthorization(evt *stripe.Event) (any, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, err
	}

	p := gateway.AuthorizationPayload{
		AuthorizationID: pi.ID,
		ChargeID:        latestChargeID(&pi),
		Status:          gateway.AuthorizationStatus(pi.Status),
		Amount:          pi.Amount,
		Currency:        strings.ToUpper(string(pi.Currency)),
		Metadata:        pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		p.FailureMessage = pi.LastPaymentError.Msg
	}
	return p, nil
}

func decodeCharge(evt *stripe.Event) (any, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
		return nil, err
	}

	p := gateway.ChargePayload{
		ChargeID:       ch.ID,
		Amount:         ch.Amount,
		AmountCaptured: ch.AmountCaptured,
		AmountRefunded: ch.AmountRefunded,
		Currency:       strings.ToUpper(string(ch.Currency)),
		Refunded:       ch.Refunded,
		Metadata:       ch.Metadata,
	}
	if ch.PaymentIntent != nil {
		p.AuthorizationID = ch.PaymentIntent.ID
	}
	return p, nil
}

func decodeDispute(evt *stripe.Event) (any, error) {
	var d stripe.Dispute
	if err := json.Unmarshal(evt.Data.Raw, &d); err != nil {
		return nil, err
	}

	p := gateway.DisputePayload{
		DisputeID: d.ID,
		Amount:    d.Amount,
		Currency:  strings.ToUpper(string(d.Currency)),
		Reason:    string(d.Reason),
		Status:    gateway.DisputeStatus(d.Status),
	}
	if d.Charge != nil {
		p.ChargeID = d.Charge.ID
	}
	if d.PaymentIntent != nil {
		p.AuthorizationID = d.PaymentIntent.ID
	}
	return p, nil
}

func decodeTransfer(evt *stripe.Event) (any, error) {
	var tr stripe.Transfer
	if err := json.Unmarshal(evt.Data.Raw, &tr); err != nil {
		return nil, err
	}

	p := gateway.TransferPayload{
		TransferID:     tr.ID,
		Amount:         tr.Amount,
		AmountReversed: tr.AmountReversed,
		Currency:       strings.ToUpper(string(tr.Currency)),
		Metadata:       tr.Metadata,
	}
	if tr.SourceTransaction != nil {
		p.SourceChargeID = tr.SourceTransaction.ID
	}
	if tr.Destination != nil {
		p.DestinationAccount = tr.Destination.ID
	}
	return p, nil
}

func decodeAccount(evt *stripe.Event) (any, error) {
	var acct stripe.Account
	if err := json.Unmarshal(evt.Data.Raw, &acct); err != nil {
		return nil, err
	}

	p := gateway.AccountPayload{
		AccountID:        acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	if acct.Requirements != nil && acct.Requirements.DisabledReason != "" {
		p.Restricted = true
	}
	if p.AccountID == "" {
		p.AccountID = evt.Account
	}
	return p, nil
}

// decodeDisconnect handles deauthorization, whose data object is the
// application rather than the account.
func decodeDisconnect(evt *stripe.Event) (any, error) {
	if evt.Account == "" {
		return nil, fmt.Errorf("missing connected account")
	}
	return gateway.AccountPayload{AccountID: evt.Account, Restricted: true}, nil
}

func decodePayout(evt *stripe.Event) (any, error) {
	var po stripe.Payout
	if err := json.Unmarshal(evt.Data.Raw, &po); err != nil {
		return nil, err
	}
	return gateway.PayoutPayload{
		PayoutID: po.ID,
		Amount:   po.Amount,
		Currency: strings.ToUpper(string(po.Currency)),
	}, nil
}

var _ gateway.EventVerifier = (*EventVerifier)(nil)
