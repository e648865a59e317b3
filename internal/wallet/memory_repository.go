package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

type memoryRepository struct {
	mu      sync.RWMutex
	now     func() time.Time
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository. Wallets are value
// types holding immutable decimals, so a struct copy is an independent copy.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		now:     func() time.Time { return time.Now().UTC() },
		storage: make(map[string]Wallet),
	}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return Wallet{}, ledger.NewError(ledger.CodeAlreadyExists, "wallet "+wallet.ID+" already exists",
			map[string]any{"wallet_id": wallet.ID})
	}
	r.storage[wallet.ID] = wallet
	return wallet, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Wallet, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	return wallet, ok, nil
}

func (r *memoryRepository) FindByIDs(_ context.Context, ids []string) (map[string]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Wallet, len(ids))
	for _, id := range ids {
		if wallet, ok := r.storage[id]; ok {
			out[id] = wallet
		}
	}
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, wallet Wallet, expectedVersion int64) (Wallet, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.storage[wallet.ID]
	if !ok || stored.Version != expectedVersion {
		return Wallet{}, false, nil
	}
	// Only the balance is mutable; identity, currency and creation time stay as stored.
	stored.Balance = wallet.Balance
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = r.now()
	r.storage[wallet.ID] = stored
	return stored, true, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[id]; !ok {
		return false, nil
	}
	delete(r.storage, id)
	return true, nil
}

func (r *memoryRepository) FindAll(_ context.Context) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Wallet, 0, len(r.storage))
	for _, wallet := range r.storage {
		out = append(out, wallet)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.storage[id]
	return ok, nil
}
