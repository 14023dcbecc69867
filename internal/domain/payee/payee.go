package payee

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus mirrors the processor's view of a connected account
type AccountStatus string

const (
	AccountStatusPending    AccountStatus = "pending"
	AccountStatusActive     AccountStatus = "active"
	AccountStatusRestricted AccountStatus = "restricted"
)

// Payee is a service provider that receives payouts through a connected account
type Payee struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	Country             string        `json:"country"`
	PreferredCurrency   string        `json:"preferred_currency,omitempty"`
	StripeAccountID     string        `json:"stripe_account_id,omitempty"`
	OnboardingCompleted bool          `json:"onboarding_completed"`
	ChargesEnabled      bool          `json:"charges_enabled"`
	PayoutsEnabled      bool          `json:"payouts_enabled"`
	AccountStatus       AccountStatus `json:"account_status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Capabilities is the subset of a connected account mirrored from the processor
type Capabilities struct {
	OnboardingCompleted bool
	ChargesEnabled      bool
	PayoutsEnabled      bool
	AccountStatus       AccountStatus
}

// Disconnected is applied when the payee revokes platform access
var Disconnected = Capabilities{AccountStatus: AccountStatusRestricted}

// ReadyForPayments reports whether a held authorization may be created for this payee
func (p *Payee) ReadyForPayments() bool {
	return p.StripeAccountID != "" && p.ChargesEnabled
}

func (p *Payee) Capabilities() Capabilities {
	return Capabilities{
		OnboardingCompleted: p.OnboardingCompleted,
		ChargesEnabled:      p.ChargesEnabled,
		PayoutsEnabled:      p.PayoutsEnabled,
		AccountStatus:       p.AccountStatus,
	}
}

// Resolution is the outcome of looking up the payee behind a booking
type Resolution struct {
	payee *Payee
}

func Found(p *Payee) Resolution {
	return Resolution{payee: p}
}

func NotFound() Resolution {
	return Resolution{}
}

func (r Resolution) Payee() (*Payee, bool) {
	return r.payee, r.payee != nil
}
