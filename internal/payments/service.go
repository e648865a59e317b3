package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/idempotency"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/reference"
	"github.com/congo-pay/wallet_ledger/internal/retry"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

const operationTransfer = "transfer"

var (
	// DefaultMaxAmount caps a single transfer.
	DefaultMaxAmount = decimal.NewFromInt(1_000_000)

	// DefaultRetryPolicy retries a lost version race twice more with
	// 10ms, then 20ms of backoff.
	DefaultRetryPolicy = retry.Policy{MaxAttempts: 3, Base: 10 * time.Millisecond}
)

// Service coordinates two-wallet transfers on top of versioned wallet updates.
type Service struct {
	wallets  wallet.Repository
	log      ledger.Log
	guard    *idempotency.Guard
	refs     *reference.Generator
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	maxAmount decimal.Decimal
	policy    retry.Policy
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxAmount overrides DefaultMaxAmount. Zero disables the cap.
func WithMaxAmount(max decimal.Decimal) Option {
	return func(s *Service) { s.maxAmount = max }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService constructs a transfer coordinator. notifier may be nil.
func NewService(wallets wallet.Repository, log ledger.Log, guard *idempotency.Guard, refs *reference.Generator, notifier notification.Notifier, opts ...Option) *Service {
	s := &Service{
		wallets:   wallets,
		log:       log,
		guard:     guard,
		refs:      refs,
		notifier:  notifier,
		logger:    slog.New(slog.DiscardHandler),
		maxAmount: DefaultMaxAmount,
		policy:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	SourceWalletID string
	TargetWalletID string
	Amount         decimal.Decimal
	IdempotencyKey string
	Metadata       map[string]any
}

// TransferResult is the state of both wallets after the transfer and the
// recorded transaction.
type TransferResult struct {
	SourceWallet wallet.Wallet      `json:"source_wallet"`
	TargetWallet wallet.Wallet      `json:"target_wallet"`
	Transaction  ledger.Transaction `json:"transaction"`
}

type transferParams struct {
	SourceWalletID string         `json:"source_wallet_id"`
	TargetWalletID string         `json:"target_wallet_id"`
	Amount         string         `json:"amount"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Transfer moves Amount from the source to the target wallet. Preconditions
// are checked before any mutation. Replaying the same idempotency key with the
// same input returns the original result without moving funds again.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	start := time.Now()
	res, err := s.transfer(ctx, input)
	s.metrics.RecordOperation(operationTransfer, outcome(err), time.Since(start).Seconds())
	return res, err
}

func (s *Service) transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if err := money.ValidateAmount(input.Amount, s.maxAmount); err != nil {
		return TransferResult{}, err
	}
	if input.SourceWalletID == input.TargetWalletID {
		return TransferResult{}, ledger.NewError(ledger.CodeSameWalletTransfer,
			"cannot transfer from wallet "+input.SourceWalletID+" to itself",
			map[string]any{"wallet_id": input.SourceWalletID})
	}

	params := transferParams{
		SourceWalletID: input.SourceWalletID,
		TargetWalletID: input.TargetWalletID,
		Amount:         input.Amount.StringFixed(money.Scale),
		Metadata:       input.Metadata,
	}
	return idempotency.Execute(ctx, s.guard, input.IdempotencyKey, operationTransfer, params,
		func(ctx context.Context) (TransferResult, error) {
			return s.transferWithRetry(ctx, input)
		})
}

func (s *Service) transferWithRetry(ctx context.Context, input TransferInput) (TransferResult, error) {
	var result TransferResult
	err := retry.Do(ctx, s.policy, retryable, func(attempt int) error {
		res, err := s.attempt(ctx, input)
		if err != nil {
			if retryable(err) {
				s.metrics.RecordVersionConflict(operationTransfer)
				s.logger.Debug("transfer lost version race",
					slog.Int("attempt", attempt),
					slog.String("source_wallet_id", input.SourceWalletID),
					slog.String("target_wallet_id", input.TargetWalletID),
					slog.Any("error", err))
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var stale *wallet.StaleVersionError
		if retryable(err) && errors.As(err, &stale) {
			conflict := ledger.ConcurrencyConflict(stale.WalletID, s.policy.MaxAttempts)
			if ctxErr := ctx.Err(); ctxErr != nil {
				conflict = conflict.WithCause(ctxErr)
			}
			s.logger.Warn("transfer gave up on concurrent modification",
				slog.String("wallet_id", stale.WalletID),
				slog.Int("attempts", s.policy.MaxAttempts))
			return TransferResult{}, conflict
		}
		return TransferResult{}, err
	}
	return result, nil
}

// attempt runs one fetch-validate-commit cycle.
func (s *Service) attempt(ctx context.Context, input TransferInput) (TransferResult, error) {
	// Phase 1: one round-trip for both wallets.
	found, err := s.wallets.FindByIDs(ctx, []string{input.SourceWalletID, input.TargetWalletID})
	if err != nil {
		return TransferResult{}, err
	}
	source, ok := found[input.SourceWalletID]
	if !ok {
		return TransferResult{}, ledger.WalletNotFound("source", input.SourceWalletID)
	}
	target, ok := found[input.TargetWalletID]
	if !ok {
		return TransferResult{}, ledger.WalletNotFound("target", input.TargetWalletID)
	}
	if source.Currency != target.Currency {
		return TransferResult{}, ledger.NewError(ledger.CodeCurrencyMismatch,
			fmt.Sprintf("cannot transfer %s to a %s wallet", source.Currency, target.Currency),
			map[string]any{
				"source_wallet_id": source.ID,
				"source_currency":  string(source.Currency),
				"target_wallet_id": target.ID,
				"target_currency":  string(target.Currency),
			})
	}
	debited := source
	if err := debited.Debit(input.Amount); err != nil {
		return TransferResult{}, err
	}

	// Phase 2 is never abandoned half way, so it ignores caller cancellation.
	commitCtx := context.WithoutCancel(ctx)

	updatedSource, ok, err := s.wallets.Update(commitCtx, debited, source.Version)
	if err != nil {
		return TransferResult{}, err
	}
	if !ok {
		return TransferResult{}, &wallet.StaleVersionError{WalletID: source.ID}
	}

	credited := target
	credited.Credit(input.Amount)
	updatedTarget, ok, err := s.wallets.Update(commitCtx, credited, target.Version)
	if err != nil || !ok {
		cause := err
		if cause == nil {
			cause = &wallet.StaleVersionError{WalletID: target.ID}
		}
		if rbErr := s.rollback(commitCtx, updatedSource, source.Balance); rbErr != nil {
			return TransferResult{}, s.reconciliationRequired(commitCtx, input, source, target, cause, rbErr)
		}
		return TransferResult{}, cause
	}

	tx, err := s.log.Append(commitCtx, ledger.Transaction{
		ID:             uuid.NewString(),
		Reference:      s.refs.Next(),
		Type:           ledger.TypeTransfer,
		SourceWalletID: source.ID,
		TargetWalletID: target.ID,
		Amount:         input.Amount,
		Currency:       string(source.Currency),
		Status:         ledger.StatusCompleted,
		Metadata:       input.Metadata,
	})
	if err != nil {
		return TransferResult{}, s.recordFailed(commitCtx, input, err)
	}

	s.metrics.RecordTransactionAmount(string(tx.Type), tx.Currency, input.Amount.InexactFloat64())
	s.logger.Info("transfer completed",
		slog.String("reference", tx.Reference),
		slog.String("source_wallet_id", source.ID),
		slog.String("target_wallet_id", target.ID),
		slog.String("amount", input.Amount.StringFixed(money.Scale)))
	s.notify(commitCtx, notification.Message{
		Kind:        notification.KindTransferred,
		Destination: target.ID,
		Body: fmt.Sprintf("You received %s %s from wallet %s",
			input.Amount.StringFixed(money.Scale), tx.Currency, source.ID),
		Data: map[string]any{"reference": tx.Reference, "source_wallet_id": source.ID},
	})

	return TransferResult{SourceWallet: updatedSource, TargetWallet: updatedTarget, Transaction: tx}, nil
}

// rollback restores the source balance after a failed credit. debited is the
// wallet as returned by the deduction, so its version is the original + 1.
func (s *Service) rollback(ctx context.Context, debited wallet.Wallet, original decimal.Decimal) error {
	restored := debited
	restored.Balance = original
	_, ok, err := s.wallets.Update(ctx, restored, debited.Version)
	if err != nil {
		s.metrics.RecordRollback("failed")
		return err
	}
	if !ok {
		s.metrics.RecordRollback("failed")
		return &wallet.StaleVersionError{WalletID: debited.ID}
	}
	s.metrics.RecordRollback("succeeded")
	return nil
}

// reconciliationRequired escalates a failed rollback. It leaves a FAILED
// transaction as a durable marker, alerts and returns a non-retryable error.
// No further self-healing is attempted.
func (s *Service) reconciliationRequired(ctx context.Context, input TransferInput, source, target wallet.Wallet, cause, rbErr error) error {
	meta := map[string]any{
		"source_wallet_id":         source.ID,
		"target_wallet_id":         target.ID,
		"amount":                   input.Amount.StringFixed(money.Scale),
		"expected_source_balance":  source.Balance.StringFixed(money.Scale),
		"idempotency_key":          input.IdempotencyKey,
		ledger.MetaBalancesApplied: true,
	}
	s.logger.Error("compensating rollback failed, manual reconciliation required",
		slog.String("source_wallet_id", source.ID),
		slog.String("target_wallet_id", target.ID),
		slog.String("amount", input.Amount.StringFixed(money.Scale)),
		slog.Any("credit_error", cause),
		slog.Any("rollback_error", rbErr))

	markerMeta := map[string]any{
		"reconciliation_required": true,
		"reason":                  "compensating rollback failed",
		"expected_source_balance": meta["expected_source_balance"],
	}
	if input.Metadata != nil {
		markerMeta["request_metadata"] = input.Metadata
	}
	marker, err := s.log.Append(ctx, ledger.Transaction{
		ID:             uuid.NewString(),
		Reference:      s.refs.Next(),
		Type:           ledger.TypeTransfer,
		SourceWalletID: source.ID,
		TargetWalletID: target.ID,
		Amount:         input.Amount,
		Currency:       string(source.Currency),
		Status:         ledger.StatusFailed,
		Metadata:       markerMeta,
	})
	if err != nil {
		s.logger.Error("failed to record reconciliation marker", slog.Any("error", err))
	} else {
		meta["reconciliation_reference"] = marker.Reference
	}

	s.notify(ctx, notification.Message{
		Kind:        notification.KindReconciliationRequired,
		Destination: source.ID,
		Body: fmt.Sprintf("transfer of %s from %s to %s was debited but could not be credited or reverted",
			input.Amount.StringFixed(money.Scale), source.ID, target.ID),
		Data: meta,
	})

	return ledger.NewError(ledger.CodeRollbackFailed,
		"transfer could not be completed or reverted; wallet "+source.ID+" needs reconciliation", meta).
		WithCause(errors.Join(cause, rbErr))
}

// recordFailed handles a transaction append that failed after both balances
// moved. It is surfaced as a conflict and never retried, because retrying
// would move the funds a second time.
func (s *Service) recordFailed(ctx context.Context, input TransferInput, appendErr error) error {
	s.logger.Error("transfer applied but transaction record failed",
		slog.String("source_wallet_id", input.SourceWalletID),
		slog.String("target_wallet_id", input.TargetWalletID),
		slog.String("amount", input.Amount.StringFixed(money.Scale)),
		slog.Any("error", appendErr))
	meta := map[string]any{
		"source_wallet_id":         input.SourceWalletID,
		"target_wallet_id":         input.TargetWalletID,
		"amount":                   input.Amount.StringFixed(money.Scale),
		ledger.MetaBalancesApplied: true,
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindReconciliationRequired,
		Destination: input.SourceWalletID,
		Body:        "transfer moved funds but its transaction record could not be written",
		Data:        meta,
	})
	return ledger.NewError(ledger.CodeConcurrencyConflict,
		"transfer applied but its transaction record could not be written", meta).WithCause(appendErr)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

// retryable holds for lost version races that left nothing behind. A failed
// rollback also wraps a stale version but must never be retried.
func retryable(err error) bool {
	return wallet.IsStale(err) && !ledger.IsCritical(err)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if code, ok := ledger.CodeOf(err); ok {
		return string(code)
	}
	return "error"
}
