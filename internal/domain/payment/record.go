package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefundEntry is one money movement back to the customer
type RefundEntry struct {
	Amount            int64         `json:"amount" bson:"amount"` // Stored in minor units
	Currency          string        `json:"currency" bson:"currency"`
	Reason            string        `json:"reason" bson:"reason"`
	ProcessorRefundID string        `json:"processor_refund_id,omitempty" bson:"processor_refund_id,omitempty"`
	FundingSource     FundingSource `json:"funding_source" bson:"funding_source"`
	Notes             string        `json:"notes,omitempty" bson:"notes,omitempty"`
	DisputeID         string        `json:"dispute_id,omitempty" bson:"dispute_id,omitempty"`
	Reversed          bool          `json:"reversed,omitempty" bson:"reversed,omitempty"`
	Reconciled        bool          `json:"reconciled,omitempty" bson:"reconciled,omitempty"` // Booked from the processor's refunded total
	Attempt           int           `json:"attempt" bson:"attempt"`
	CreatedAt         time.Time     `json:"created_at" bson:"created_at"`
}

// Annotation is an operator-visible note attached to a record
type Annotation struct {
	Kind      AnnotationKind `json:"kind" bson:"kind"`
	Message   string         `json:"message" bson:"message"`
	Reference string         `json:"reference,omitempty" bson:"reference,omitempty"`
	Currency  string         `json:"currency,omitempty" bson:"currency,omitempty"`
	Amount    int64          `json:"amount,omitempty" bson:"amount,omitempty"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

// Record is the Payment Ledger entry for one booking. It is the only writable
// copy of the payment state; the booking's summary is projected from it.
type Record struct {
	BookingID      uuid.UUID `json:"booking_id" bson:"booking_id"`
	CustomerID     uuid.UUID `json:"customer_id" bson:"customer_id"`
	PayeeID        uuid.UUID `json:"payee_id" bson:"payee_id"`
	PayeeAccountID string    `json:"payee_account_id" bson:"payee_account_id"`
	Status         Status    `json:"status" bson:"status"`
	Attempt        int       `json:"attempt" bson:"attempt"`

	Currency           string `json:"currency" bson:"currency"`
	Amount             int64  `json:"amount" bson:"amount"`
	VATAmount          int64  `json:"vat_amount" bson:"vat_amount"`
	VATRate            string `json:"vat_rate" bson:"vat_rate"`
	TotalWithVAT       int64  `json:"total_with_vat" bson:"total_with_vat"`
	PlatformCommission int64  `json:"platform_commission" bson:"platform_commission"`
	ProfessionalPayout int64  `json:"professional_payout" bson:"professional_payout"`

	AuthorizationID      string `json:"authorization_id,omitempty" bson:"authorization_id,omitempty"`
	ClientSecret         string `json:"-" bson:"client_secret,omitempty"`
	ChargeID             string `json:"charge_id,omitempty" bson:"charge_id,omitempty"`
	TransferID           string `json:"transfer_id,omitempty" bson:"transfer_id,omitempty"`
	DestinationPaymentID string `json:"destination_payment_id,omitempty" bson:"destination_payment_id,omitempty"`
	TransferAmount       int64  `json:"transfer_amount,omitempty" bson:"transfer_amount,omitempty"`
	TransferCurrency     string `json:"transfer_currency,omitempty" bson:"transfer_currency,omitempty"`

	AuthorizedAt  *time.Time `json:"authorized_at,omitempty" bson:"authorized_at,omitempty"`
	CapturedAt    *time.Time `json:"captured_at,omitempty" bson:"captured_at,omitempty"`
	TransferredAt *time.Time `json:"transferred_at,omitempty" bson:"transferred_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`

	RefundEntries []RefundEntry `json:"refund_entries" bson:"refund_entries"`
	Annotations   []Annotation  `json:"annotations" bson:"annotations"`

	Version   int       `json:"version" bson:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Pricing is the computed breakdown of a booking payment
type Pricing struct {
	Currency           string
	Amount             int64
	VATAmount          int64
	VATRate            string
	TotalWithVAT       int64
	PlatformCommission int64
	ProfessionalPayout int64
}

// Authorization identifies the processor-side hold backing a record
type Authorization struct {
	ID           string
	ClientSecret string
}

// NewRecord creates the first pending record for a booking
func NewRecord(bookingID, customerID, payeeID uuid.UUID, payeeAccountID string, pricing Pricing, auth Authorization, now time.Time) *Record {
	r := &Record{
		BookingID:  bookingID,
		CustomerID: customerID,
		CreatedAt:  now,
	}
	r.start(1, payeeID, payeeAccountID, pricing, auth, now)
	return r
}

// Restart replaces a failed or refunded authorization with a new pending one.
// Refund entries of earlier attempts stay on the record but no longer count
// towards the refunded total.
func (r *Record) Restart(payeeID uuid.UUID, payeeAccountID string, pricing Pricing, auth Authorization, now time.Time) error {
	if !r.Status.AllowsNewAuthorization() {
		return fmt.Errorf("%w: cannot restart authorization from %s", ErrInvalidStatus, r.Status)
	}

	r.Annotations = append(r.Annotations, Annotation{
		Kind:      AnnotationAuthorizationReset,
		Message:   fmt.Sprintf("attempt %d ended as %s, refunded %d %s", r.Attempt, r.Status, r.RefundedAmount(), r.Currency),
		Reference: r.AuthorizationID,
		Currency:  r.Currency,
		Amount:    r.TotalWithVAT,
		CreatedAt: now,
	})

	r.ChargeID = ""
	r.TransferID = ""
	r.DestinationPaymentID = ""
	r.TransferAmount = 0
	r.TransferCurrency = ""
	r.AuthorizedAt = nil
	r.CapturedAt = nil
	r.TransferredAt = nil
	r.RefundedAt = nil

	r.start(r.Attempt+1, payeeID, payeeAccountID, pricing, auth, now)
	return nil
}

func (r *Record) start(attempt int, payeeID uuid.UUID, payeeAccountID string, pricing Pricing, auth Authorization, now time.Time) {
	r.Attempt = attempt
	r.PayeeID = payeeID
	r.PayeeAccountID = payeeAccountID
	r.Status = StatusPending
	r.Currency = pricing.Currency
	r.Amount = pricing.Amount
	r.VATAmount = pricing.VATAmount
	r.VATRate = pricing.VATRate
	r.TotalWithVAT = pricing.TotalWithVAT
	r.PlatformCommission = pricing.PlatformCommission
	r.ProfessionalPayout = pricing.ProfessionalPayout
	r.AuthorizationID = auth.ID
	r.ClientSecret = auth.ClientSecret
	r.UpdatedAt = now
}

func (r *Record) transition(next Status, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidStatus, r.Status, next)
	}
	r.force(next, now)
	return nil
}

func (r *Record) force(next Status, now time.Time) {
	r.Status = next
	r.UpdatedAt = now
}

// Authorize marks the hold as confirmed by the processor
func (r *Record) Authorize(chargeID string, now time.Time) error {
	if err := r.transition(StatusAuthorized, now); err != nil {
		return err
	}
	if chargeID != "" {
		r.ChargeID = chargeID
	}
	r.AuthorizedAt = &now
	return nil
}

// MarkCaptured records a successful capture. The status stays authorized until
// the payout transfer is resolved.
func (r *Record) MarkCaptured(chargeID string, now time.Time) error {
	if r.Status != StatusAuthorized {
		return fmt.Errorf("%w: cannot capture from %s", ErrInvalidStatus, r.Status)
	}
	if chargeID != "" {
		r.ChargeID = chargeID
	}
	if r.CapturedAt == nil {
		r.CapturedAt = &now
	}
	r.UpdatedAt = now
	return nil
}

// CompleteTransfer closes the capture-transfer flow after a successful payout.
// A transfer id already learned from a webhook must match transferID.
func (r *Record) CompleteTransfer(transferID, destinationPaymentID string, amount int64, currency string, now time.Time) error {
	if r.TransferID != "" && r.TransferID != transferID {
		return fmt.Errorf("%w: transfer %s already recorded, got %s", ErrInvalidStatus, r.TransferID, transferID)
	}
	if err := r.transition(StatusCompleted, now); err != nil {
		return err
	}
	r.TransferID = transferID
	r.DestinationPaymentID = destinationPaymentID
	r.TransferAmount = amount
	r.TransferCurrency = currency
	if r.TransferredAt == nil {
		r.TransferredAt = &now
	}
	return nil
}

// CompleteWithTransferFailure closes a captured payment whose payout failed.
// The annotation carries what an operator needs to retry the transfer by hand.
func (r *Record) CompleteWithTransferFailure(amount int64, currency string, cause error, now time.Time) error {
	if err := r.transition(StatusCompleted, now); err != nil {
		return err
	}
	r.Annotations = append(r.Annotations, Annotation{
		Kind:      AnnotationTransferFailed,
		Message:   cause.Error(),
		Reference: r.PayeeAccountID,
		Currency:  currency,
		Amount:    amount,
		CreatedAt: now,
	})
	return nil
}

// Fail marks the authorization as failed
func (r *Record) Fail(reason string, now time.Time) error {
	if err := r.transition(StatusFailed, now); err != nil {
		return err
	}
	if reason != "" {
		r.Annotations = append(r.Annotations, Annotation{
			Kind:      AnnotationAuthorizationFailed,
			Message:   reason,
			Reference: r.AuthorizationID,
			CreatedAt: now,
		})
	}
	return nil
}

// CancelAuthorization releases an uncaptured hold. The full total is recorded
// as a platform-funded refund entry.
func (r *Record) CancelAuthorization(reason string, now time.Time) error {
	if err := r.transition(StatusRefunded, now); err != nil {
		return err
	}
	r.appendRefund(RefundEntry{
		Amount:        r.TotalWithVAT,
		Currency:      r.Currency,
		Reason:        reason,
		FundingSource: FundingSourcePlatform,
		Notes:         "authorization cancelled before capture",
		CreatedAt:     now,
	})
	r.RefundedAt = &now
	return nil
}

// Annotate appends an operator note without changing the status
func (r *Record) Annotate(a Annotation) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.UpdatedAt
	}
	r.Annotations = append(r.Annotations, a)
}

func (r *Record) appendRefund(entry RefundEntry) {
	entry.Attempt = r.Attempt
	r.RefundEntries = append(r.RefundEntries, entry)
}

// currentRefunds calls fn for each standing entry of the current attempt
func (r *Record) currentRefunds(fn func(entry *RefundEntry)) {
	for i := range r.RefundEntries {
		entry := &r.RefundEntries[i]
		if entry.Attempt == r.Attempt && !entry.Reversed {
			fn(entry)
		}
	}
}

// RefundedAmount sums the standing refund entries of the current attempt
func (r *Record) RefundedAmount() int64 {
	var total int64
	r.currentRefunds(func(entry *RefundEntry) {
		total += entry.Amount
	})
	return total
}

// RefundableAmount is what can still be returned to the customer
func (r *Record) RefundableAmount() int64 {
	remaining := r.TotalWithVAT - r.RefundedAmount()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Record) reconciledAmount() int64 {
	var total int64
	r.currentRefunds(func(entry *RefundEntry) {
		if entry.Reconciled {
			total += entry.Amount
		}
	})
	return total
}

// processorRefundedAmount is the part of the refunded total the processor
// itself reports. Disputes are excluded.
func (r *Record) processorRefundedAmount() int64 {
	var total int64
	r.currentRefunds(func(entry *RefundEntry) {
		if entry.DisputeID == "" {
			total += entry.Amount
		}
	})
	return total
}

// absorbReconciled offsets reconciled entries against a refund issued by this
// service, so a refund seen first through a webhook is not counted twice.
func (r *Record) absorbReconciled(amount int64, refundID string) {
	r.currentRefunds(func(entry *RefundEntry) {
		if amount == 0 || !entry.Reconciled {
			return
		}
		take := min(amount, entry.Amount)
		amount -= take
		if take == entry.Amount {
			entry.Reversed = true
			entry.Notes = fmt.Sprintf("%s; superseded by refund %s", entry.Notes, refundID)
			return
		}
		entry.Amount -= take
		entry.Notes = fmt.Sprintf("%s; %d superseded by refund %s", entry.Notes, take, refundID)
	})
}

// ApplyRefund appends a post-capture refund and moves the status according to
// the cumulative refunded total.
func (r *Record) ApplyRefund(entry RefundEntry, now time.Time) error {
	if entry.Amount <= 0 {
		return ErrInvalidAmount
	}
	absorbed := min(entry.Amount, r.reconciledAmount())
	alreadyBooked := r.Status == StatusRefunded && absorbed == entry.Amount
	if !r.Status.IsCaptured() && !alreadyBooked {
		return fmt.Errorf("%w: cannot refund from %s", ErrInvalidStatus, r.Status)
	}

	refunded := r.RefundedAmount() - absorbed + entry.Amount
	if refunded > r.TotalWithVAT {
		return ErrRefundExceedsTotal
	}

	next := StatusPartiallyRefunded
	if refunded >= r.TotalWithVAT {
		next = StatusRefunded
	}
	if next != r.Status {
		if err := r.transition(next, now); err != nil {
			return err
		}
	}
	r.UpdatedAt = now

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	r.absorbReconciled(absorbed, entry.ProcessorRefundID)
	r.appendRefund(entry)
	r.RefundedAt = &now
	return nil
}

// ApplyProcessorRefund mirrors the processor's cumulative refunded amount.
// Refunds not yet on the record, such as ones issued from the processor
// dashboard, are booked as a reconciled platform-funded entry.
// It reports whether anything changed.
func (r *Record) ApplyProcessorRefund(amountRefunded int64, now time.Time) bool {
	if !r.Status.IsCaptured() || amountRefunded <= 0 {
		return false
	}

	changed := false
	if gap := min(amountRefunded-r.processorRefundedAmount(), r.RefundableAmount()); gap > 0 {
		r.appendRefund(RefundEntry{
			Amount:        gap,
			Currency:      r.Currency,
			Reason:        "refunded at processor",
			FundingSource: FundingSourcePlatform,
			Notes:         fmt.Sprintf("processor reports %d %s refunded in total", amountRefunded, r.Currency),
			Reconciled:    true,
			CreatedAt:     now,
		})
		changed = true
	}

	next := StatusPartiallyRefunded
	if r.RefundedAmount() >= r.TotalWithVAT {
		next = StatusRefunded
	}
	if next != r.Status {
		r.force(next, now)
		changed = true
	}
	if changed {
		r.UpdatedAt = now
		r.RefundedAt = &now
	}
	return changed
}

// PayoutAmount is the amount owed to the payee in booking currency.
// It falls back to the total and then the net amount when the split is unset.
func (r *Record) PayoutAmount() int64 {
	switch {
	case r.ProfessionalPayout > 0:
		return r.ProfessionalPayout
	case r.TotalWithVAT > 0:
		return r.TotalWithVAT
	default:
		return r.Amount
	}
}

// HasTransfer reports whether a payout reached the payee
func (r *Record) HasTransfer() bool {
	return r.TransferID != ""
}

// RecordTransfer stores a transfer id learned from the processor if none is known yet
func (r *Record) RecordTransfer(transferID string, now time.Time) bool {
	if transferID == "" || r.TransferID != "" {
		return false
	}
	r.TransferID = transferID
	if r.TransferredAt == nil {
		r.TransferredAt = &now
	}
	r.UpdatedAt = now
	return true
}

func (r *Record) disputeEntry(disputeID string) *RefundEntry {
	for i := range r.RefundEntries {
		if r.RefundEntries[i].DisputeID == disputeID {
			return &r.RefundEntries[i]
		}
	}
	return nil
}

func (r *Record) hasAnnotation(kind AnnotationKind, reference string) bool {
	for _, a := range r.Annotations {
		if a.Kind == kind && a.Reference == reference {
			return true
		}
	}
	return false
}

// OpenDispute forces the record to refunded regardless of its current state
// and books the disputed amount as a platform-funded refund entry.
// It reports false when the dispute was already recorded.
func (r *Record) OpenDispute(disputeID, reason string, amount int64, currency string, now time.Time) bool {
	if r.disputeEntry(disputeID) != nil {
		return false
	}

	booked := amount
	notes := fmt.Sprintf("dispute %s opened: %s", disputeID, reason)
	if refundable := r.RefundableAmount(); booked > refundable {
		booked = refundable
		notes = fmt.Sprintf("%s (disputed %d %s, capped at refundable total)", notes, amount, currency)
	}

	r.appendRefund(RefundEntry{
		Amount:        booked,
		Currency:      r.Currency,
		Reason:        reason,
		FundingSource: FundingSourcePlatform,
		Notes:         notes,
		DisputeID:     disputeID,
		CreatedAt:     now,
	})
	r.Annotations = append(r.Annotations, Annotation{
		Kind:      AnnotationDisputeOpened,
		Message:   reason,
		Reference: disputeID,
		Currency:  currency,
		Amount:    amount,
		CreatedAt: now,
	})
	r.RefundedAt = &now
	r.force(StatusRefunded, now)
	return true
}

// ResolveDispute applies the outcome of a closed dispute.
// A won dispute restores the funds and the completed status; a lost one is only annotated.
// It reports whether anything changed.
func (r *Record) ResolveDispute(disputeID string, won bool, now time.Time) bool {
	if !won {
		if r.hasAnnotation(AnnotationDisputeLost, disputeID) {
			return false
		}
		r.Annotations = append(r.Annotations, Annotation{
			Kind:      AnnotationDisputeLost,
			Message:   "dispute lost, funds returned to cardholder",
			Reference: disputeID,
			CreatedAt: now,
		})
		r.UpdatedAt = now
		return true
	}

	if r.hasAnnotation(AnnotationDisputeWon, disputeID) {
		return false
	}

	if entry := r.disputeEntry(disputeID); entry != nil && !entry.Reversed {
		entry.Reversed = true
		entry.Notes += "; funds restored after dispute won"
	}
	r.Annotations = append(r.Annotations, Annotation{
		Kind:      AnnotationDisputeWon,
		Message:   "dispute won, funds restored",
		Reference: disputeID,
		CreatedAt: now,
	})
	r.force(StatusCompleted, now)
	return true
}
