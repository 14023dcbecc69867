package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCurrency(t *testing.T) {
	tests := []struct {
		name      string
		quote     string
		preferred string
		locale    string
		fallback  string
		expected  string
	}{
		{name: "QuoteCurrencyWins", quote: "usd", preferred: "GBP", locale: "de-DE", fallback: "EUR", expected: "USD"},
		{name: "PayeePreferredWhenNoQuoteCurrency", quote: "", preferred: "gbp", locale: "de-DE", fallback: "EUR", expected: "GBP"},
		{name: "LocaleWhenNothingElse", quote: "", preferred: "", locale: "de_DE", fallback: "USD", expected: "EUR"},
		{name: "FallbackLast", quote: "", preferred: "", locale: "", fallback: "eur", expected: "EUR"},
		{name: "MalformedQuoteCurrencySkipped", quote: "dollars", preferred: "CHF", locale: "", fallback: "EUR", expected: "CHF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveCurrency(tt.quote, tt.preferred, tt.locale, tt.fallback))
		})
	}
}

func TestCurrencyForLocale(t *testing.T) {
	tests := []struct {
		locale   string
		expected string
		ok       bool
	}{
		{locale: "de-DE", expected: "EUR", ok: true},
		{locale: "en_GB", expected: "GBP", ok: true},
		{locale: "en-US", expected: "USD", ok: true},
		{locale: "de-CH", expected: "CHF", ok: true},
		{locale: "", expected: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			got, ok := CurrencyForLocale(tt.locale)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}
