package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

// InitialVersion is the optimistic-locking version of a freshly created wallet.
const InitialVersion int64 = 1

// Wallet represents a balance-holding account. ID and Currency never change
// after creation; Version grows by exactly one on every successful update.
type Wallet struct {
	ID        string          `json:"id"`
	Currency  money.Currency  `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanDebit reports whether the wallet holds at least amount.
func (w Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Debit removes amount from the in-memory balance. The change only becomes
// visible once applied through Repository.Update.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !w.CanDebit(amount) {
		return ledger.NewInsufficientBalance(w.ID, amount, w.Balance)
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the in-memory balance.
func (w *Wallet) Credit(amount decimal.Decimal) {
	w.Balance = w.Balance.Add(amount)
}

// Details is a wallet with a page of its transaction history.
type Details struct {
	Wallet       Wallet               `json:"wallet"`
	Transactions []ledger.Transaction `json:"transactions"`
	TotalCount   int                  `json:"total_count"`
}
