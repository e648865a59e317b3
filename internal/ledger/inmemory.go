package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type inMemoryLog struct {
	mu          sync.RWMutex
	now         func() time.Time
	entries     []Transaction
	byID        map[string]int
	byReference map[string]int
}

// NewInMemory creates a concurrency-safe in-memory transaction log.
func NewInMemory() Log {
	return newInMemory(func() time.Time { return time.Now().UTC() })
}

func newInMemory(now func() time.Time) *inMemoryLog {
	return &inMemoryLog{
		now:         now,
		byID:        make(map[string]int),
		byReference: make(map[string]int),
	}
}

func (l *inMemoryLog) Append(_ context.Context, tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	if tx.Status == "" {
		tx.Status = StatusCompleted
	}
	metadata, err := NormalizeMetadata(tx.Metadata)
	if err != nil {
		return Transaction{}, err
	}
	tx.Metadata = metadata

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[tx.ID]; exists {
		return Transaction{}, NewError(CodeAlreadyExists, "transaction "+tx.ID+" already exists",
			map[string]any{"id": tx.ID})
	}
	if _, exists := l.byReference[tx.Reference]; exists {
		return Transaction{}, NewError(CodeAlreadyExists, "transaction reference "+tx.Reference+" already exists",
			map[string]any{"reference": tx.Reference})
	}

	now := l.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	stored := tx
	l.entries = append(l.entries, stored)
	l.byID[stored.ID] = len(l.entries) - 1
	l.byReference[stored.Reference] = len(l.entries) - 1
	return stored.Clone(), nil
}

func (l *inMemoryLog) FindByID(_ context.Context, id string) (Transaction, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[id]
	if !ok {
		return Transaction{}, false, nil
	}
	return l.entries[idx].Clone(), true, nil
}

func (l *inMemoryLog) FindByReference(_ context.Context, reference string) (Transaction, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byReference[reference]
	if !ok {
		return Transaction{}, false, nil
	}
	return l.entries[idx].Clone(), true, nil
}

func (l *inMemoryLog) FindByWallet(_ context.Context, walletID string, opts ListOptions) ([]Transaction, error) {
	return l.list(opts, func(tx Transaction) bool { return tx.Involves(walletID) }), nil
}

func (l *inMemoryLog) FindByType(_ context.Context, txType Type, opts ListOptions) ([]Transaction, error) {
	return l.list(opts, func(tx Transaction) bool { return tx.Type == txType }), nil
}

func (l *inMemoryLog) CountByWallet(_ context.Context, walletID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, tx := range l.entries {
		if tx.Involves(walletID) {
			count++
		}
	}
	return count, nil
}

// list filters under the read lock and pages the matches. Entries are kept in
// append order, which the stable sort preserves for equal timestamps.
func (l *inMemoryLog) list(opts ListOptions, match func(Transaction) bool) []Transaction {
	opts = opts.Normalize()

	l.mu.RLock()
	matched := make([]Transaction, 0)
	for _, tx := range l.entries {
		if match(tx) {
			matched = append(matched, tx)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if opts.Order == OrderDesc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if opts.Offset >= len(matched) {
		return []Transaction{}
	}
	end := opts.Offset + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]Transaction, 0, end-opts.Offset)
	for _, tx := range matched[opts.Offset:end] {
		page = append(page, tx.Clone())
	}
	return page
}
