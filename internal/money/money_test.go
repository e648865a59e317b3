package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

func TestValidateAmount(t *testing.T) {
	max := decimal.NewFromInt(1_000)
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "whole", amount: "10"},
		{name: "two places", amount: "10.25"},
		{name: "trailing zeros", amount: "10.500"},
		{name: "at max", amount: "1000"},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-1", wantErr: true},
		{name: "three places", amount: "0.001", wantErr: true},
		{name: "over max", amount: "1000.01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount), max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateAmountUnlimitedMax(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(1_000_000_000), decimal.Zero))
}

func TestValidateAmountOverMaxCarriesLimit(t *testing.T) {
	err := ValidateAmount(decimal.NewFromInt(20), decimal.NewFromInt(10))
	var ledgerErr *ledger.Error
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, "10.00", ledgerErr.Meta["max"])
}

func TestValidateInitialBalance(t *testing.T) {
	assert.NoError(t, ValidateInitialBalance(decimal.Zero))
	assert.NoError(t, ValidateInitialBalance(decimal.RequireFromString("99.99")))
	assert.ErrorIs(t, ValidateInitialBalance(decimal.NewFromInt(-5)), ledger.ErrInvalidAmount)
	assert.ErrorIs(t, ValidateInitialBalance(decimal.RequireFromString("1.234")), ledger.ErrInvalidAmount)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	c, err = ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, c)

	_, err = ParseCurrency("XAF")
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrency)
}

func TestParse(t *testing.T) {
	d, err := Parse(" 12.30 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.3")))

	_, err = Parse("twelve")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}
