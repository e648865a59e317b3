package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

func newTestWallet(id string, balance int64) Wallet {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return Wallet{
		ID:        id,
		Currency:  money.USD,
		Balance:   decimal.NewFromInt(balance),
		Version:   InitialVersion,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryRepositoryCreateRejectsDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newTestWallet("w1", 10))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestWallet("w1", 20))
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	stored, ok, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(10)))
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newTestWallet("w1", 10))
	require.NoError(t, err)
	created.Balance = decimal.NewFromInt(1_000)

	fetched, _, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	fetched.Balance = decimal.NewFromInt(5_000)

	again, _, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(10)))
}

func TestMemoryRepositoryFindByIDsSkipsMissing(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.Create(ctx, newTestWallet("a", 1))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestWallet("b", 2))
	require.NoError(t, err)

	found, err := repo.FindByIDs(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "a")
	assert.Contains(t, found, "b")
	assert.NotContains(t, found, "c")

	_, ok, err := repo.FindByID(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRepositoryUpdateChecksVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	w, err := repo.Create(ctx, newTestWallet("w1", 10))
	require.NoError(t, err)

	w.Balance = decimal.NewFromInt(15)
	updated, ok, err := repo.Update(ctx, w, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.UpdatedAt.After(w.UpdatedAt))
	assert.Equal(t, w.CreatedAt, updated.CreatedAt)

	w.Balance = decimal.NewFromInt(99)
	_, ok, err = repo.Update(ctx, w, 1)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not apply")

	stored, _, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int64(2), stored.Version)

	_, ok, err = repo.Update(ctx, newTestWallet("ghost", 1), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRepositoryUpdateKeepsIdentity(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	w, err := repo.Create(ctx, newTestWallet("w1", 10))
	require.NoError(t, err)

	w.Currency = money.Currency("EUR")
	w.CreatedAt = time.Time{}
	updated, ok, err := repo.Update(ctx, w, w.Version)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, money.USD, updated.Currency)
	assert.False(t, updated.CreatedAt.IsZero())
}

func TestMemoryRepositoryConcurrentUpdatesSingleWinner(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	w, err := repo.Create(ctx, newTestWallet("w1", 100))
	require.NoError(t, err)

	const workers = 32
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt := w
			attempt.Balance = decimal.NewFromInt(int64(i))
			if _, ok, err := repo.Update(ctx, attempt, w.Version); err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	stored, _, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, w.Version+1, stored.Version)
}

func TestMemoryRepositoryMonotonicVersions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.Create(ctx, newTestWallet("w1", 0))
	require.NoError(t, err)

	const updates = 25
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				current, _, err := repo.FindByID(ctx, "w1")
				if err != nil {
					return
				}
				if current.Balance.GreaterThanOrEqual(decimal.NewFromInt(updates)) {
					return
				}
				current.Credit(decimal.NewFromInt(1))
				_, _, _ = repo.Update(ctx, current, current.Version)
			}
		}()
	}
	wg.Wait()

	stored, _, err := repo.FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(updates)))
	assert.Equal(t, InitialVersion+updates, stored.Version)
}

func TestMemoryRepositoryAdminHelpers(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.Create(ctx, newTestWallet("a", 1))
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	deleted, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	exists, err = repo.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}
