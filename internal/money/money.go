package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Currency is an ISO 4217 code supported by the ledger.
type Currency string

const (
	USD Currency = "USD"
)

// DefaultCurrency is used when a caller does not name one.
const DefaultCurrency = USD

// Scale is the number of fractional digits amounts may carry.
const Scale = 2

var supported = map[Currency]struct{}{
	USD: {},
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	c := Currency(code)
	if _, ok := supported[c]; !ok {
		return "", ledger.NewError(ledger.CodeInvalidCurrency, "unsupported currency "+code,
			map[string]any{"currency": code})
	}
	return c, nil
}

// ValidateAmount checks a movement amount: positive, at most two fractional
// digits and not above max. A zero max disables the upper bound.
func ValidateAmount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.InvalidAmount(amount, "must be positive")
	}
	if !HasValidScale(amount) {
		return ledger.InvalidAmount(amount, "at most 2 decimal places allowed")
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		err := ledger.InvalidAmount(amount, "exceeds maximum of "+max.StringFixed(Scale))
		err.Meta["max"] = max.StringFixed(Scale)
		return err
	}
	return nil
}

// ValidateInitialBalance checks an opening balance, which may be zero.
func ValidateInitialBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ledger.InvalidAmount(amount, "initial balance cannot be negative")
	}
	if !HasValidScale(amount) {
		return ledger.InvalidAmount(amount, "at most 2 decimal places allowed")
	}
	return nil
}

// HasValidScale reports whether amount is representable with two fractional digits.
func HasValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(Scale))
}

// Parse reads a decimal amount from its string form.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ledger.NewError(ledger.CodeInvalidAmount, "amount is not a decimal number",
			map[string]any{"amount": s}).WithCause(err)
	}
	return d, nil
}
