package wallet

import (
	"errors"
	"fmt"
)

// StaleVersionError reports that a versioned Update lost its race. It is an
// internal retry signal; callers surface ledger.ConcurrencyConflict once
// their retry budget is spent.
type StaleVersionError struct {
	WalletID string
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("wallet %s changed since it was read", e.WalletID)
}

// IsStale reports whether err carries a StaleVersionError.
func IsStale(err error) bool {
	var stale *StaleVersionError
	return errors.As(err, &stale)
}
