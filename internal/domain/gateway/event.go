package gateway

// EventKind is the normalized category of an inbound processor event
type EventKind string

const (
	EventUnknown                EventKind = "unknown"
	EventAuthorizationSucceeded EventKind = "authorization_succeeded"
	EventAuthorizationFailed    EventKind = "authorization_failed"
	EventAuthorizationCanceled  EventKind = "authorization_canceled"
	EventChargeCaptured         EventKind = "charge_captured"
	EventChargeRefunded         EventKind = "charge_refunded"
	EventDisputeOpened          EventKind = "dispute_opened"
	EventDisputeClosed          EventKind = "dispute_closed"
	EventTransferCreated        EventKind = "transfer_created"
	EventTransferReversed       EventKind = "transfer_reversed"
	EventAccountUpdated         EventKind = "account_updated"
	EventAccountDisconnected    EventKind = "account_disconnected"
	EventPayoutPaid             EventKind = "payout_paid"
)

// Event is a verified inbound notification. Payload holds the typed
// struct matching Kind, or nil for EventUnknown.
type Event struct {
	ID      string
	Type    string // Raw processor event type
	Kind    EventKind
	Account string // Connected account the event originated from, if any
	Payload any
}

// AuthorizationPayload accompanies the authorization_* kinds
type AuthorizationPayload struct {
	AuthorizationID string
	ChargeID        string
	Status          AuthorizationStatus
	Amount          int64
	Currency        string
	FailureMessage  string
	Metadata        map[string]string
}

// ChargePayload accompanies charge_captured and charge_refunded
type ChargePayload struct {
	ChargeID        string
	AuthorizationID string
	Amount          int64
	AmountCaptured  int64
	AmountRefunded  int64
	Currency        string
	Refunded        bool
	Metadata        map[string]string
}

type DisputeStatus string

const (
	DisputeStatusWon  DisputeStatus = "won"
	DisputeStatusLost DisputeStatus = "lost"
)

// DisputePayload accompanies dispute_opened and dispute_closed
type DisputePayload struct {
	DisputeID       string
	ChargeID        string
	AuthorizationID string
	Amount          int64
	Currency        string
	Reason          string
	Status          DisputeStatus
}

func (d DisputePayload) Won() bool {
	return d.Status == DisputeStatusWon
}

// TransferPayload accompanies transfer_created and transfer_reversed
type TransferPayload struct {
	TransferID         string
	SourceChargeID     string
	DestinationAccount string
	Amount             int64
	AmountReversed     int64
	Currency           string
	Metadata           map[string]string
}

// AccountPayload accompanies account_updated and account_disconnected
type AccountPayload struct {
	AccountID        string
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
	Restricted       bool
}

type PayoutPayload struct {
	PayoutID string
	Amount   int64
	Currency string
}
