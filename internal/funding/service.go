package funding

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

const (
	operationFund     = "fund"
	operationWithdraw = "withdraw"
)

// ErrAuthorizationDeclined is returned when the acquirer refuses a movement.
var ErrAuthorizationDeclined = errors.New("authorization declined")

var (
	// DefaultMaxAmount caps a single funding or withdrawal.
	DefaultMaxAmount = decimal.NewFromInt(1_000_000)

	// DefaultRetryPolicy bounds retries of a lost version race.
	DefaultRetryPolicy = retry.Policy{MaxAttempts: 3, Base: 10 * time.Millisecond}
)

// Service credits and debits single wallets against an external party.
type Service struct {
	wallets  wallet.Repository
	log      ledger.Log
	guard    *idempotency.Guard
	refs     *reference.Generator
	acquirer Acquirer
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	maxAmount decimal.Decimal
	policy    retry.Policy
}

// Option customises a Service.
type Option func(*Service)

// WithAcquirer overrides the StaticAcquirer.
func WithAcquirer(a Acquirer) Option {
	return func(s *Service) { s.acquirer = a }
}

// WithNotifier sets where funding events are sent.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

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

// NewService prepares a funding service.
func NewService(wallets wallet.Repository, log ledger.Log, guard *idempotency.Guard, refs *reference.Generator, opts ...Option) (*Service, error) {
	if wallets == nil || log == nil {
		return nil, fmt.Errorf("wallet repository and transaction log are required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard is required")
	}
	if refs == nil {
		refs = reference.New("")
	}
	s := &Service{
		wallets:   wallets,
		log:       log,
		guard:     guard,
		refs:      refs,
		acquirer:  StaticAcquirer{},
		logger:    slog.New(slog.DiscardHandler),
		maxAmount: DefaultMaxAmount,
		policy:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FundInput captures a credit from an external source.
type FundInput struct {
	WalletID       string
	Amount         decimal.Decimal
	IdempotencyKey string
	Metadata       map[string]any
}

// WithdrawInput captures a debit to an external sink.
type WithdrawInput struct {
	WalletID       string
	Amount         decimal.Decimal
	IdempotencyKey string
	Metadata       map[string]any
}

type movementParams struct {
	WalletID string         `json:"wallet_id"`
	Amount   string         `json:"amount"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type movement struct {
	kind     ledger.Type
	walletID string
	amount   decimal.Decimal
	key      string
	metadata map[string]any
}

// Fund credits the wallet and records a FUNDING transaction. Replays of the
// same idempotency key and input return the original wallet state.
func (s *Service) Fund(ctx context.Context, input FundInput) (wallet.Wallet, error) {
	return s.run(ctx, operationFund, movement{
		kind:     ledger.TypeFunding,
		walletID: input.WalletID,
		amount:   input.Amount,
		key:      input.IdempotencyKey,
		metadata: input.Metadata,
	})
}

// Withdraw debits the wallet and records a WITHDRAWAL transaction.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (wallet.Wallet, error) {
	return s.run(ctx, operationWithdraw, movement{
		kind:     ledger.TypeWithdrawal,
		walletID: input.WalletID,
		amount:   input.Amount,
		key:      input.IdempotencyKey,
		metadata: input.Metadata,
	})
}

func (s *Service) run(ctx context.Context, operation string, m movement) (wallet.Wallet, error) {
	start := time.Now()
	w, err := s.guarded(ctx, operation, m)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code, ok := ledger.CodeOf(err); ok {
			outcome = string(code)
		}
	}
	s.metrics.RecordOperation(operation, outcome, time.Since(start).Seconds())
	return w, err
}

func (s *Service) guarded(ctx context.Context, operation string, m movement) (wallet.Wallet, error) {
	if err := money.ValidateAmount(m.amount, s.maxAmount); err != nil {
		return wallet.Wallet{}, err
	}
	params := movementParams{
		WalletID: m.walletID,
		Amount:   m.amount.StringFixed(money.Scale),
		Metadata: m.metadata,
	}
	return idempotency.Execute(ctx, s.guard, m.key, operation, params, func(ctx context.Context) (wallet.Wallet, error) {
		return s.apply(ctx, operation, m)
	})
}

func (s *Service) apply(ctx context.Context, operation string, m movement) (wallet.Wallet, error) {
	current, ok, err := s.wallets.FindByID(ctx, m.walletID)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if !ok {
		return wallet.Wallet{}, ledger.WalletNotFound("wallet", m.walletID)
	}
	if m.kind == ledger.TypeWithdrawal && !current.CanDebit(m.amount) {
		return wallet.Wallet{}, ledger.NewInsufficientBalance(current.ID, m.amount, current.Balance)
	}

	decision, err := s.authorize(ctx, m, current)
	if err != nil {
		return wallet.Wallet{}, err
	}

	var updated wallet.Wallet
	err = retry.Do(ctx, s.policy, wallet.IsStale, func(attempt int) error {
		if attempt > 1 {
			fresh, ok, err := s.wallets.FindByID(ctx, m.walletID)
			if err != nil {
				return err
			}
			if !ok {
				return ledger.WalletNotFound("wallet", m.walletID)
			}
			current = fresh
		}
		next := current
		switch m.kind {
		case ledger.TypeWithdrawal:
			if err := next.Debit(m.amount); err != nil {
				return err
			}
		default:
			next.Credit(m.amount)
		}
		u, ok, err := s.wallets.Update(ctx, next, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			s.metrics.RecordVersionConflict(operation)
			return &wallet.StaleVersionError{WalletID: current.ID}
		}
		updated = u
		return nil
	})
	if err != nil {
		s.releaseAuthorization(context.WithoutCancel(ctx), operation, m, decision, err)
		if wallet.IsStale(err) {
			return wallet.Wallet{}, ledger.ConcurrencyConflict(m.walletID, s.policy.MaxAttempts)
		}
		return wallet.Wallet{}, err
	}

	// The balance has moved; nothing below may be abandoned on cancellation.
	commitCtx := context.WithoutCancel(ctx)

	tx := ledger.Transaction{
		ID:             uuid.NewString(),
		Reference:      s.refs.Next(),
		Type:           m.kind,
		TargetWalletID: updated.ID,
		Amount:         m.amount,
		Currency:       string(updated.Currency),
		Status:         ledger.StatusCompleted,
		Metadata:       withAcquirerReference(m.metadata, decision.Reference),
	}
	if m.kind == ledger.TypeWithdrawal {
		tx.SourceWalletID = updated.ID
	}
	stored, err := s.log.Append(commitCtx, tx)
	if err != nil {
		s.logger.Error("balance updated but transaction record failed",
			slog.String("operation", operation),
			slog.String("wallet_id", updated.ID),
			slog.String("amount", m.amount.StringFixed(money.Scale)),
			slog.Any("error", err))
		meta := map[string]any{
			"wallet_id":                updated.ID,
			"amount":                   m.amount.StringFixed(money.Scale),
			ledger.MetaBalancesApplied: true,
		}
		s.notify(commitCtx, notification.Message{
			Kind:        notification.KindReconciliationRequired,
			Destination: updated.ID,
			Body:        operation + " moved funds but its transaction record could not be written",
			Data:        meta,
		})
		return wallet.Wallet{}, ledger.NewError(ledger.CodeConcurrencyConflict,
			operation+" applied but its transaction record could not be written", meta).WithCause(err)
	}

	s.metrics.RecordTransactionAmount(string(stored.Type), stored.Currency, m.amount.InexactFloat64())
	s.logger.Info(operation+" completed",
		slog.String("reference", stored.Reference),
		slog.String("wallet_id", updated.ID),
		slog.String("amount", m.amount.StringFixed(money.Scale)),
		slog.Int64("version", updated.Version))

	kind, verb := notification.KindFunded, "funded with"
	if m.kind == ledger.TypeWithdrawal {
		kind, verb = notification.KindWithdrawn, "debited by"
	}
	s.notify(commitCtx, notification.Message{
		Kind:        kind,
		Destination: updated.ID,
		Body:        fmt.Sprintf("Wallet %s %s %s %s", updated.ID, verb, m.amount.StringFixed(money.Scale), stored.Currency),
		Data:        map[string]any{"reference": stored.Reference},
	})
	return updated, nil
}

func (s *Service) authorize(ctx context.Context, m movement, w wallet.Wallet) (AuthorizationDecision, error) {
	auth := Authorization{WalletID: w.ID, Amount: m.amount, Currency: string(w.Currency)}
	var (
		decision AuthorizationDecision
		err      error
	)
	if m.kind == ledger.TypeWithdrawal {
		decision, err = s.acquirer.AuthorizePayout(ctx, auth)
	} else {
		decision, err = s.acquirer.AuthorizeFunding(ctx, auth)
	}
	if err != nil {
		return AuthorizationDecision{}, fmt.Errorf("acquirer authorization: %w", err)
	}
	if !decision.Approved() {
		return AuthorizationDecision{}, fmt.Errorf("%w: status %s", ErrAuthorizationDeclined, decision.Status)
	}
	return decision, nil
}

// releaseAuthorization voids an approval whose balance update never landed.
// Acquirers that cannot void, or fail to, leave the reference for reconciliation.
func (s *Service) releaseAuthorization(ctx context.Context, operation string, m movement, decision AuthorizationDecision, cause error) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("wallet_id", m.walletID),
		slog.String("acquirer_reference", decision.Reference),
		slog.Any("error", cause),
	}
	voider, ok := s.acquirer.(Voider)
	if ok {
		err := voider.VoidAuthorization(ctx, decision.Reference)
		if err == nil {
			s.logger.Warn(operation+" not applied, authorization voided", attrs...)
			return
		}
		attrs = append(attrs, slog.Any("void_error", err))
	}

	s.logger.Error(operation+" not applied, authorization left open", attrs...)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindReconciliationRequired,
		Destination: m.walletID,
		Body:        operation + " was authorized by the acquirer but never applied to the wallet",
		Data: map[string]any{
			"wallet_id":          m.walletID,
			"amount":             m.amount.StringFixed(money.Scale),
			"acquirer_reference": decision.Reference,
		},
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func withAcquirerReference(metadata map[string]any, ref string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	if ref != "" {
		out["acquirer_reference"] = ref
	}
	return out
}
