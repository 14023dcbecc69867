package payment

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// ResolveCurrency picks the settlement currency for a booking.
// Precedence: quote currency, payee preferred currency, customer locale, fallback.
func ResolveCurrency(quoteCurrency, payeePreferred, customerLocale, fallback string) string {
	if c := normalizeCurrency(quoteCurrency); c != "" {
		return c
	}
	if c := normalizeCurrency(payeePreferred); c != "" {
		return c
	}
	if c, ok := CurrencyForLocale(customerLocale); ok {
		return c
	}
	return normalizeCurrency(fallback)
}

// CurrencyForLocale maps a locale such as "de-DE" or "en_GB" to the ISO 4217
// currency of its region.
func CurrencyForLocale(locale string) (string, bool) {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return "", false
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return "", false
	}

	region, confidence := tag.Region()
	if confidence == language.No {
		return "", false
	}

	unit, ok := currency.FromRegion(region)
	if !ok {
		return "", false
	}
	return unit.String(), true
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return ""
	}
	if _, err := currency.ParseISO(code); err != nil {
		return ""
	}
	return code
}
