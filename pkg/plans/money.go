package plans

import (
	"errors"
	"fmt"

	"golang.org/x/text/currency"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`     // Amount in smallest currency unit (cents for USD)
	Currency string `yaml:"currency" json:"currency"` // ISO 4217 currency code
}

// Validate checks the currency code against the ISO 4217 registry.
func (m Money) Validate() error {
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return errors.Join(ErrInvalidCurrency, err)
	}
	return nil
}

// IsZero reports whether the amount is zero. Zero-priced plans bypass the
// payment gateway entirely.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the amount in major units with the normalized currency code,
// e.g. "10.99 USD". The decimal scale follows the ISO 4217 registry, so
// zero-decimal currencies such as JPY render without a fraction. Unknown
// currency codes fall back to two decimals.
func (m Money) String() string {
	code := m.Currency
	scale := 2
	if unit, err := currency.ParseISO(m.Currency); err == nil {
		code = unit.String()
		scale, _ = currency.Standard.Rounding(unit)
	}

	amount := m.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if scale == 0 {
		return fmt.Sprintf("%s%d %s", sign, amount, code)
	}

	factor := int64(1)
	for range scale {
		factor *= 10
	}
	return fmt.Sprintf("%s%d.%0*d %s", sign, amount/factor, scale, amount%factor, code)
}
