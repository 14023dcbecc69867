package payment

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Split is the division of a charged total between platform and payee
type Split struct {
	PlatformCommission int64
	ProfessionalPayout int64
}

// SplitTotal computes commission = total x percent / 100 rounded to the minor unit,
// and assigns the remainder to the payee so both parts always add up to total.
func SplitTotal(total int64, commissionPercent decimal.Decimal) Split {
	commission := decimal.NewFromInt(total).
		Mul(commissionPercent).
		Div(hundred).
		Round(0).
		IntPart()

	if commission < 0 {
		commission = 0
	}
	if commission > total {
		commission = total
	}

	return Split{
		PlatformCommission: commission,
		ProfessionalPayout: total - commission,
	}
}

// ProportionalAmount scales base by clamp(part/whole, 0, 1) and rounds to the
// nearest minor unit, never returning less than 1.
func ProportionalAmount(base, part, whole int64) int64 {
	ratio := decimal.NewFromInt(1)
	if whole > 0 {
		ratio = decimal.NewFromInt(part).Div(decimal.NewFromInt(whole))
	}
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}

	amount := decimal.NewFromInt(base).Mul(ratio).Round(0).IntPart()
	if amount < 1 {
		return 1
	}
	return amount
}
