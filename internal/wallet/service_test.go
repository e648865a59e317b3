package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

func TestServiceCreateAndGet(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{Currency: "usd", InitialBalance: decimal.RequireFromString("25.50")})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, money.USD, w.Currency)
	assert.Equal(t, InitialVersion, w.Version)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("25.5")))

	fetched, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, fetched)
}

func TestServiceCreateDefaultsCurrencyAndZeroBalance(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())

	w, err := svc.Create(context.Background(), CreateInput{})
	require.NoError(t, err)
	assert.Equal(t, money.DefaultCurrency, w.Currency)
	assert.True(t, w.Balance.IsZero())
}

func TestServiceCreateRejectsInvalidInput(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Currency: "XAF"})
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrency)

	_, err = svc.Create(ctx, CreateInput{InitialBalance: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Create(ctx, CreateInput{InitialBalance: decimal.RequireFromString("1.005")})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestServiceGetNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	var ledgerErr *ledger.Error
	require.True(t, errors.As(err, &ledgerErr))
	assert.Equal(t, "missing", ledgerErr.Meta["wallet_id"])
}

func TestServiceDetailsPagesHistory(t *testing.T) {
	log := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), log)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{})
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateInput{})
	require.NoError(t, err)

	for i, ref := range []string{"R1", "R2", "R3"} {
		_, err := log.Append(ctx, ledger.Transaction{
			ID:             ref,
			Reference:      ref,
			Type:           ledger.TypeFunding,
			TargetWalletID: w.ID,
			Amount:         decimal.NewFromInt(int64(i + 1)),
			Currency:       string(money.USD),
		})
		require.NoError(t, err)
	}
	_, err = log.Append(ctx, ledger.Transaction{
		ID: "R4", Reference: "R4", Type: ledger.TypeFunding, TargetWalletID: other.ID,
		Amount: decimal.NewFromInt(9), Currency: string(money.USD),
	})
	require.NoError(t, err)

	details, err := svc.Details(ctx, w.ID, DetailsQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, w.ID, details.Wallet.ID)
	assert.Equal(t, 3, details.TotalCount)
	require.Len(t, details.Transactions, 2)
	assert.Equal(t, "R3", details.Transactions[0].Reference)
	assert.Equal(t, "R2", details.Transactions[1].Reference)

	_, err = svc.Details(ctx, "missing", DetailsQuery{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestServiceTransactionByReference(t *testing.T) {
	log := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), log)
	ctx := context.Background()

	_, err := log.Append(ctx, ledger.Transaction{
		ID:             "tx-1",
		Reference:      "TXN-20260101000000-001-ABCD",
		Type:           ledger.TypeFunding,
		TargetWalletID: "w1",
		Amount:         decimal.NewFromInt(10),
		Currency:       "USD",
	})
	require.NoError(t, err)

	tx, err := svc.Transaction(ctx, "TXN-20260101000000-001-ABCD")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)

	_, err = svc.Transaction(ctx, "TXN-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}
