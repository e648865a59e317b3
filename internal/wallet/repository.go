package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

// Repository persists wallets. It is the sole mutator of stored wallet state
// and every read returns an independent copy.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) (Wallet, error)
	FindByID(ctx context.Context, id string) (Wallet, bool, error)
	// FindByIDs returns the wallets that exist; missing ids are absent from the map.
	FindByIDs(ctx context.Context, ids []string) (map[string]Wallet, error)
	// Update stores wallet only if the stored version equals expectedVersion.
	// A lost race or a missing wallet yields false with a nil error.
	Update(ctx context.Context, wallet Wallet, expectedVersion int64) (Wallet, bool, error)
	// Delete is an administrative escape hatch; financial records are not
	// deleted in normal operation.
	Delete(ctx context.Context, id string) (bool, error)
	FindAll(ctx context.Context) ([]Wallet, error)
	Exists(ctx context.Context, id string) (bool, error)
}

const walletColumns = `id, currency, balance::text, version, created_at, updated_at`

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) (Wallet, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO wallets (id, currency, balance, version, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)
        RETURNING `+walletColumns,
		wallet.ID, string(wallet.Currency), wallet.Balance.StringFixed(money.Scale), wallet.Version,
		wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	created, err := scanWallet(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Wallet{}, ledger.NewError(ledger.CodeAlreadyExists, "wallet "+wallet.ID+" already exists",
				map[string]any{"wallet_id": wallet.ID}).WithCause(err)
		}
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return created, nil
}

// FindByID fetches a wallet by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Wallet, bool, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, fmt.Errorf("select wallet: %w", err)
	}
	return w, true, nil
}

// FindByIDs fetches several wallets in one round-trip.
func (r *PostgresRepository) FindByIDs(ctx context.Context, ids []string) (map[string]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Wallet, len(ids))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out[w.ID] = w
	}
	return out, rows.Err()
}

// Update applies a version-checked write. The WHERE clause on version makes
// the check-and-set a single atomic statement.
func (r *PostgresRepository) Update(ctx context.Context, wallet Wallet, expectedVersion int64) (Wallet, bool, error) {
	row := r.db.QueryRow(ctx, `UPDATE wallets
        SET balance = $1::numeric, version = version + 1, updated_at = $2
        WHERE id = $3 AND version = $4
        RETURNING `+walletColumns,
		wallet.Balance.StringFixed(money.Scale), time.Now().UTC(), wallet.ID, expectedVersion)
	updated, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, fmt.Errorf("update wallet: %w", err)
	}
	return updated, true, nil
}

// Delete removes a wallet record.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete wallet: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// FindAll lists every wallet, oldest first.
func (r *PostgresRepository) FindAll(ctx context.Context) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	out := make([]Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Exists reports whether a wallet is stored.
func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("wallet exists: %w", err)
	}
	return exists, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w        Wallet
		currency string
		balance  string
	)
	if err := row.Scan(&w.ID, &currency, &balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.Balance = parsed
	w.Currency = money.Currency(currency)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
