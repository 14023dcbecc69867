package payment

import "time"

// Summary is the read-only projection of a Record embedded in the booking
type Summary struct {
	Status             Status     `json:"status"`
	Attempt            int        `json:"attempt"`
	Currency           string     `json:"currency"`
	Amount             int64      `json:"amount"`
	VATAmount          int64      `json:"vat_amount"`
	VATRate            string     `json:"vat_rate"`
	TotalWithVAT       int64      `json:"total_with_vat"`
	PlatformCommission int64      `json:"platform_commission"`
	ProfessionalPayout int64      `json:"professional_payout"`
	RefundedAmount     int64      `json:"refunded_amount"`
	AuthorizationID    string     `json:"authorization_id,omitempty"`
	ChargeID           string     `json:"charge_id,omitempty"`
	TransferID         string     `json:"transfer_id,omitempty"`
	ClientSecret       string     `json:"client_secret,omitempty"`
	AuthorizedAt       *time.Time `json:"authorized_at,omitempty"`
	CapturedAt         *time.Time `json:"captured_at,omitempty"`
	TransferredAt      *time.Time `json:"transferred_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
	Version            int        `json:"version"` // Ledger record version the summary was taken from
}

func (r *Record) Summary() Summary {
	return Summary{
		Status:             r.Status,
		Attempt:            r.Attempt,
		Currency:           r.Currency,
		Amount:             r.Amount,
		VATAmount:          r.VATAmount,
		VATRate:            r.VATRate,
		TotalWithVAT:       r.TotalWithVAT,
		PlatformCommission: r.PlatformCommission,
		ProfessionalPayout: r.ProfessionalPayout,
		RefundedAmount:     r.RefundedAmount(),
		AuthorizationID:    r.AuthorizationID,
		ChargeID:           r.ChargeID,
		TransferID:         r.TransferID,
		ClientSecret:       r.ClientSecret,
		AuthorizedAt:       r.AuthorizedAt,
		CapturedAt:         r.CapturedAt,
		TransferredAt:      r.TransferredAt,
		RefundedAt:         r.RefundedAt,
		Version:            r.Version,
	}
}
