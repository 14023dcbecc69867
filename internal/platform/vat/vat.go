// Package vat computes value added tax on booking amounts.
package vat

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Request carries the parties of a taxable supply. Amount is net, in minor units.
type Request struct {
	Amount            int64
	CustomerCountry   string
	CustomerVATNumber string
	PayeeCountry      string
	Business          bool
}

type Result struct {
	VATAmount     int64
	VATRate       decimal.Decimal // Percentage, e.g. 19 for 19%
	Total         int64
	ReverseCharge bool
}

// Calculator is the tax collaborator consumed when pricing a payment
type Calculator interface {
	Calculate(req Request) Result
}

// RateTable applies standard rates per ISO 3166 alpha-2 country.
// Countries without an entry are taxed at zero.
type RateTable struct {
	rates map[string]decimal.Decimal
	eu    map[string]bool
}

func NewRateTable() *RateTable {
	t := &RateTable{
		rates: make(map[string]decimal.Decimal, len(euStandardRates)+len(otherStandardRates)),
		eu:    make(map[string]bool, len(euStandardRates)),
	}
	for c, r := range euStandardRates {
		t.rates[c] = decimal.RequireFromString(r)
		t.eu[c] = true
	}
	for c, r := range otherStandardRates {
		t.rates[c] = decimal.RequireFromString(r)
	}
	return t
}

// Rate returns the standard rate for country and whether one is known
func (t *RateTable) Rate(country string) (decimal.Decimal, bool) {
	r, ok := t.rates[normalizeCountry(country)]
	return r, ok
}

// Calculate picks the applicable rate:
//   - cross-border EU business customers with a VAT number are reverse charged at 0%
//   - other business customers pay the payee's rate
//   - consumers pay the rate of their own country, or the payee's when theirs is unknown
func (t *RateTable) Calculate(req Request) Result {
	customer := normalizeCountry(req.CustomerCountry)
	payee := normalizeCountry(req.PayeeCountry)

	if req.Business && strings.TrimSpace(req.CustomerVATNumber) != "" &&
		customer != "" && payee != "" && customer != payee &&
		t.eu[customer] && t.eu[payee] {
		return Result{VATRate: decimal.Zero, Total: req.Amount, ReverseCharge: true}
	}

	country := payee
	if !req.Business {
		if _, ok := t.rates[customer]; ok {
			country = customer
		}
	}

	rate := t.rates[country]
	vatAmount := decimal.NewFromInt(req.Amount).Mul(rate).Div(hundred).Round(0).IntPart()

	return Result{
		VATAmount: vatAmount,
		VATRate:   rate,
		Total:     req.Amount + vatAmount,
	}
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

var _ Calculator = (*RateTable)(nil)
