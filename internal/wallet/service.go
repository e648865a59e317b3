package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

// Service exposes wallet lifecycle and read operations.
type Service struct {
	repo Repository
	log  ledger.Log
	now  func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, log ledger.Log) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	Currency       string
	InitialBalance decimal.Decimal
}

// Create provisions a wallet at version 1 with the given opening balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	currency, err := money.ParseCurrency(input.Currency)
	if err != nil {
		return Wallet{}, err
	}
	if err := money.ValidateInitialBalance(input.InitialBalance); err != nil {
		return Wallet{}, err
	}

	now := s.now()
	return s.repo.Create(ctx, Wallet{
		ID:        uuid.NewString(),
		Currency:  currency,
		Balance:   input.InitialBalance,
		Version:   InitialVersion,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Get retrieves a wallet or a NOT_FOUND error.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	w, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	if !ok {
		return Wallet{}, ledger.WalletNotFound("wallet", id)
	}
	return w, nil
}

// DetailsQuery pages the transaction history returned with a wallet.
type DetailsQuery struct {
	Limit  int
	Offset int
	Order  ledger.SortOrder
}

// Details returns the wallet with a page of its history and the total number
// of transactions touching it.
func (s *Service) Details(ctx context.Context, id string, query DetailsQuery) (Details, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	txs, err := s.log.FindByWallet(ctx, id, ledger.ListOptions{
		Limit:  query.Limit,
		Offset: query.Offset,
		Order:  query.Order,
	})
	if err != nil {
		return Details{}, err
	}
	total, err := s.log.CountByWallet(ctx, id)
	if err != nil {
		return Details{}, err
	}
	return Details{Wallet: w, Transactions: txs, TotalCount: total}, nil
}

// Transaction looks up a recorded movement by its reference.
func (s *Service) Transaction(ctx context.Context, reference string) (ledger.Transaction, error) {
	tx, ok, err := s.log.FindByReference(ctx, reference)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !ok {
		return ledger.Transaction{}, ledger.TransactionNotFound("reference", reference)
	}
	return tx, nil
}
