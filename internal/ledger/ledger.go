package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a balance movement.
type Type string

const (
	// TypeFunding credits a wallet from an external, unmodeled source.
	TypeFunding Type = "FUNDING"
	// TypeTransfer moves funds between two wallets.
	TypeTransfer Type = "TRANSFER"
	// TypeWithdrawal debits a wallet towards an external sink.
	TypeWithdrawal Type = "WITHDRAWAL"
)

// Status is the lifecycle state of a recorded transaction.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusReversed  Status = "REVERSED"
)

// SortOrder orders listings by creation time.
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Transaction is an immutable record of a balance movement. SourceWalletID is
// empty for funding.
type Transaction struct {
	ID             string          `json:"id"`
	Reference      string          `json:"reference"`
	Type           Type            `json:"type"`
	SourceWalletID string          `json:"source_wallet_id,omitempty"`
	TargetWalletID string          `json:"target_wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate enforces the structural invariants of a transaction record.
func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return InvalidAmount(t.Amount, "transaction amount must be positive")
	}
	if t.TargetWalletID == "" {
		return NewError(CodeInvalidTransaction, "transaction requires a target wallet", map[string]any{"id": t.ID})
	}
	switch t.Type {
	case TypeFunding:
		if t.SourceWalletID != "" {
			return NewError(CodeInvalidTransaction, "funding transactions cannot carry a source wallet",
				map[string]any{"id": t.ID, "source_wallet_id": t.SourceWalletID})
		}
	case TypeTransfer, TypeWithdrawal:
		if t.SourceWalletID == "" {
			return NewError(CodeInvalidTransaction, string(t.Type)+" transactions require a source wallet",
				map[string]any{"id": t.ID})
		}
	default:
		return NewError(CodeInvalidTransaction, "unknown transaction type "+string(t.Type), map[string]any{"id": t.ID})
	}
	return nil
}

// Involves reports whether the wallet is the source or the target of t.
func (t Transaction) Involves(walletID string) bool {
	return t.SourceWalletID == walletID || t.TargetWalletID == walletID
}

// Clone returns a copy that shares no mutable state with t.
func (t Transaction) Clone() Transaction {
	t.Metadata = cloneMap(t.Metadata)
	return t
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// NormalizeMetadata reduces metadata to its JSON form: nested values become
// map[string]any, []any, string, float64, bool or nil. Stored metadata then
// reads back the same from every Log, and Clone copies it fully.
func NormalizeMetadata(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, NewError(CodeInvalidTransaction, "transaction metadata is not JSON-encodable", nil).WithCause(err)
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, NewError(CodeInvalidTransaction, "transaction metadata is not JSON-encodable", nil).WithCause(err)
	}
	return out, nil
}

// ListOptions paginates and orders transaction listings.
type ListOptions struct {
	Limit  int
	Offset int
	Order  SortOrder
}

// Normalize applies defaults: newest first, DefaultLimit rows, clamped to MaxLimit.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Order != OrderAsc {
		o.Order = OrderDesc
	}
	return o
}

// Log is the append-only transaction history. Implementations never mutate a
// stored transaction in place and always return independent copies.
type Log interface {
	Append(ctx context.Context, tx Transaction) (Transaction, error)
	FindByID(ctx context.Context, id string) (Transaction, bool, error)
	FindByReference(ctx context.Context, reference string) (Transaction, bool, error)
	FindByWallet(ctx context.Context, walletID string, opts ListOptions) ([]Transaction, error)
	FindByType(ctx context.Context, txType Type, opts ListOptions) ([]Transaction, error)
	CountByWallet(ctx context.Context, walletID string) (int, error)
}
