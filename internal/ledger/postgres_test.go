package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/infra"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

func newPostgresLog(t *testing.T, walletIDs ...string) *ledger.PostgresLog {
	t.Helper()
	pool := infra.NewTestPool(t)
	for _, id := range walletIDs {
		mustCreateWallet(t, pool, id)
	}
	return ledger.NewPostgresLog(pool)
}

func mustCreateWallet(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO wallets (id, currency, balance, version) VALUES ($1, 'USD', 0, 1)`, id)
	require.NoError(t, err)
}

func pgTransfer(id, source, target string, amount int64, at time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:             id,
		Reference:      "REF-" + id,
		Type:           ledger.TypeTransfer,
		SourceWalletID: source,
		TargetWalletID: target,
		Amount:         decimal.NewFromInt(amount),
		Currency:       "USD",
		CreatedAt:      at,
	}
}

func TestPostgresLogAppendAndFind(t *testing.T) {
	log := newPostgresLog(t, "w1")
	ctx := context.Background()

	stored, err := log.Append(ctx, ledger.Transaction{
		ID:             "t1",
		Reference:      "REF-t1",
		Type:           ledger.TypeFunding,
		TargetWalletID: "w1",
		Amount:         decimal.RequireFromString("12.34"),
		Currency:       "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, stored.Status)

	byRef, ok, err := log.FindByReference(ctx, "REF-t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", byRef.ID)
	assert.Empty(t, byRef.SourceWalletID)
	assert.True(t, byRef.Amount.Equal(decimal.RequireFromString("12.34")))

	_, ok, err = log.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = log.Append(ctx, ledger.Transaction{
		ID:             "t1",
		Reference:      "REF-other",
		Type:           ledger.TypeFunding,
		TargetWalletID: "w1",
		Amount:         decimal.NewFromInt(1),
		Currency:       "USD",
	})
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestPostgresLogMetadataRoundTrip(t *testing.T) {
	log := newPostgresLog(t, "w1")
	ctx := context.Background()

	tx := ledger.Transaction{
		ID:             "t1",
		Reference:      "REF-t1",
		Type:           ledger.TypeFunding,
		TargetWalletID: "w1",
		Amount:         decimal.NewFromInt(5),
		Currency:       "USD",
		Metadata:       map[string]any{"tags": []string{"a"}, "inner": map[string]string{"k": "v"}, "count": 2},
	}
	stored, err := log.Append(ctx, tx)
	require.NoError(t, err)

	fetched, ok, err := log.FindByID(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.Metadata, fetched.Metadata)
	assert.Equal(t, []any{"a"}, fetched.Metadata["tags"])
	assert.Equal(t, float64(2), fetched.Metadata["count"])
}

func TestPostgresLogPagination(t *testing.T) {
	log := newPostgresLog(t, "w1", "w2", "w3")
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, pgTransfer(fmt.Sprintf("t%d", i), "w1", "w2", int64(i+1), start.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	_, err := log.Append(ctx, pgTransfer("other", "w2", "w3", 1, start))
	require.NoError(t, err)

	page, err := log.FindByWallet(ctx, "w1", ledger.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t4", page[0].ID)
	assert.Equal(t, "t3", page[1].ID)

	page, err = log.FindByWallet(ctx, "w1", ledger.ListOptions{Limit: 2, Offset: 4, Order: ledger.OrderDesc})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t0", page[0].ID)

	asc, err := log.FindByWallet(ctx, "w1", ledger.ListOptions{Order: ledger.OrderAsc})
	require.NoError(t, err)
	require.Len(t, asc, 5)
	assert.Equal(t, "t0", asc[0].ID)

	count, err := log.CountByWallet(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	transfers, err := log.FindByType(ctx, ledger.TypeTransfer, ledger.ListOptions{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, transfers, 6)
}
