package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Code is the stable, machine-readable kind of a ledger failure.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeInvalidCurrency      Code = "INVALID_CURRENCY"
	CodeCurrencyMismatch     Code = "CURRENCY_MISMATCH"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeSameWalletTransfer   Code = "SAME_WALLET_TRANSFER"
	CodeConcurrencyConflict  Code = "CONCURRENCY_CONFLICT"
	CodeDuplicateIdempotency Code = "DUPLICATE_IDEMPOTENT_REQUEST"
	CodeRollbackFailed       Code = "ROLLBACK_FAILED"
	CodeInvalidTransaction   Code = "INVALID_TRANSACTION"
)

var (
	// ErrNotFound indicates a wallet or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity with the same identifier is already stored.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidAmount covers non-positive, over-precise or over-limit amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCurrency indicates an unsupported currency code.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrCurrencyMismatch indicates the wallets of a transfer hold different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientBalance occurs when the source wallet lacks available balance
	// to cover a requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSameWalletTransfer rejects transfers whose source equals the target.
	ErrSameWalletTransfer = errors.New("source and target wallet are the same")

	// ErrConcurrencyConflict is returned once optimistic locking retries are exhausted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateRequest indicates an idempotency key was reused with different
	// parameters or for a different operation.
	ErrDuplicateRequest = errors.New("idempotency key reused with different parameters")

	// ErrRollbackFailed is critical: a compensating rollback could not be applied
	// and the affected wallets need manual reconciliation.
	ErrRollbackFailed = errors.New("compensating rollback failed")

	// ErrInvalidTransaction indicates a transaction record violates its structural invariants.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

var codeKinds = map[Code]error{
	CodeNotFound:             ErrNotFound,
	CodeAlreadyExists:        ErrAlreadyExists,
	CodeInvalidAmount:        ErrInvalidAmount,
	CodeInvalidCurrency:      ErrInvalidCurrency,
	CodeCurrencyMismatch:     ErrCurrencyMismatch,
	CodeInsufficientBalance:  ErrInsufficientBalance,
	CodeSameWalletTransfer:   ErrSameWalletTransfer,
	CodeConcurrencyConflict:  ErrConcurrencyConflict,
	CodeDuplicateIdempotency: ErrDuplicateRequest,
	CodeRollbackFailed:       ErrRollbackFailed,
	CodeInvalidTransaction:   ErrInvalidTransaction,
}

// Coded is implemented by every structured ledger error so that callers can map
// failures to transport codes without parsing messages.
type Coded interface {
	error
	ErrorCode() Code
	Metadata() map[string]any
}

// Error is a structured ledger failure. It matches its kind sentinel with
// errors.Is and optionally wraps an underlying cause.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	Cause   error
}

// NewError builds an Error of the given kind.
func NewError(code Code, message string, meta map[string]any) *Error {
	return &Error{Code: code, Message: message, Meta: meta}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if kind, ok := codeKinds[e.Code]; ok {
		errs = append(errs, kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func (e *Error) ErrorCode() Code { return e.Code }

func (e *Error) Metadata() map[string]any { return e.Meta }

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	WalletID  string
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

// NewInsufficientBalance computes the shortfall for a failed debit.
func NewInsufficientBalance(walletID string, required, available decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		WalletID:  walletID,
		Required:  required,
		Available: available,
		Shortfall: required.Sub(available),
	}
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in wallet %s: required %s, available %s, shortfall %s",
		e.WalletID, e.Required.StringFixed(2), e.Available.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func (e *InsufficientBalanceError) ErrorCode() Code { return CodeInsufficientBalance }

func (e *InsufficientBalanceError) Metadata() map[string]any {
	return map[string]any{
		"wallet_id": e.WalletID,
		"required":  e.Required.StringFixed(2),
		"available": e.Available.StringFixed(2),
		"shortfall": e.Shortfall.StringFixed(2),
	}
}

// WalletNotFound reports a missing wallet. Role names the wallet's part in the
// operation ("source", "target" or "wallet").
func WalletNotFound(role, id string) *Error {
	return NewError(CodeNotFound, fmt.Sprintf("%s wallet %s not found", role, id),
		map[string]any{"role": role, "wallet_id": id})
}

// TransactionNotFound reports a missing transaction.
func TransactionNotFound(field, value string) *Error {
	return NewError(CodeNotFound, fmt.Sprintf("transaction with %s %s not found", field, value),
		map[string]any{field: value})
}

// InvalidAmount reports an amount that failed validation.
func InvalidAmount(amount decimal.Decimal, reason string) *Error {
	return NewError(CodeInvalidAmount, "invalid amount: "+reason,
		map[string]any{"amount": amount.String(), "reason": reason})
}

// ConcurrencyConflict reports a lost optimistic-locking race that was not resolved.
func ConcurrencyConflict(walletID string, attempts int) *Error {
	return NewError(CodeConcurrencyConflict,
		fmt.Sprintf("wallet %s was modified concurrently; gave up after %d attempts", walletID, attempts),
		map[string]any{"wallet_id": walletID, "attempts": attempts})
}

// MetaBalancesApplied flags an error raised after balances had already moved.
const MetaBalancesApplied = "balances_applied"

// IsRetryable returns true if resubmitting the same request may succeed. A
// conflict raised after balances moved is not: resubmitting would move them again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) && !BalancesApplied(err)
}

// BalancesApplied reports whether err carries the balances_applied marker.
func BalancesApplied(err error) bool {
	var coded Coded
	if !errors.As(err, &coded) {
		return false
	}
	applied, _ := coded.Metadata()[MetaBalancesApplied].(bool)
	return applied
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSameWalletTransfer) ||
		errors.Is(err, ErrDuplicateRequest)
}

// IsCritical returns true if the ledger may be inconsistent and needs reconciliation.
func IsCritical(err error) bool {
	return errors.Is(err, ErrRollbackFailed)
}

// CodeOf returns the ledger code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return "", false
}
