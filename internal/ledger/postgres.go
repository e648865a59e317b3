package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const transactionColumns = `id, reference, type, COALESCE(source_wallet_id, ''), target_wallet_id,
        amount::text, currency, status, metadata, created_at, updated_at`

// PostgresLog persists the append-only transaction history in PostgreSQL.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog constructs a Postgres-backed transaction log.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts a transaction. The table has no UPDATE path for core fields.
func (l *PostgresLog) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	if tx.Status == "" {
		tx.Status = StatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.UpdatedAt = tx.CreatedAt

	normalized, err := NormalizeMetadata(tx.Metadata)
	if err != nil {
		return Transaction{}, err
	}
	tx.Metadata = normalized
	var metadata []byte
	if tx.Metadata != nil {
		encoded, err := json.Marshal(tx.Metadata)
		if err != nil {
			return Transaction{}, fmt.Errorf("encode transaction metadata: %w", err)
		}
		metadata = encoded
	}

	_, err = l.db.Exec(ctx, `INSERT INTO transactions
        (id, reference, type, source_wallet_id, target_wallet_id, amount, currency, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::numeric, $7, $8, $9, $10, $11)`,
		tx.ID, tx.Reference, string(tx.Type), tx.SourceWalletID, tx.TargetWalletID, tx.Amount.StringFixed(2),
		tx.Currency, string(tx.Status), metadata, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, NewError(CodeAlreadyExists, "transaction "+tx.ID+" already exists",
				map[string]any{"id": tx.ID, "reference": tx.Reference}).WithCause(err)
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx.Clone(), nil
}

// FindByID fetches a transaction by identifier.
func (l *PostgresLog) FindByID(ctx context.Context, id string) (Transaction, bool, error) {
	return l.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

// FindByReference fetches a transaction by its human-readable reference.
func (l *PostgresLog) FindByReference(ctx context.Context, reference string) (Transaction, bool, error) {
	return l.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
}

// FindByWallet lists transactions where the wallet is the source or the target.
func (l *PostgresLog) FindByWallet(ctx context.Context, walletID string, opts ListOptions) ([]Transaction, error) {
	opts = opts.Normalize()
	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE source_wallet_id = $1 OR target_wallet_id = $1
        ORDER BY created_at ` + direction(opts.Order) + `, seq ` + direction(opts.Order) + `
        LIMIT $2 OFFSET $3`
	return l.findMany(ctx, query, walletID, opts.Limit, opts.Offset)
}

// FindByType lists transactions of one type.
func (l *PostgresLog) FindByType(ctx context.Context, txType Type, opts ListOptions) ([]Transaction, error) {
	opts = opts.Normalize()
	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE type = $1
        ORDER BY created_at ` + direction(opts.Order) + `, seq ` + direction(opts.Order) + `
        LIMIT $2 OFFSET $3`
	return l.findMany(ctx, query, string(txType), opts.Limit, opts.Offset)
}

// CountByWallet counts transactions touching the wallet.
func (l *PostgresLog) CountByWallet(ctx context.Context, walletID string) (int, error) {
	var count int
	err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
        WHERE source_wallet_id = $1 OR target_wallet_id = $1`, walletID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func (l *PostgresLog) findOne(ctx context.Context, query string, arg string) (Transaction, bool, error) {
	tx, err := scanTransaction(l.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return tx, true, nil
}

func (l *PostgresLog) findMany(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx       Transaction
		txType   string
		status   string
		amount   string
		metadata []byte
	)
	if err := row.Scan(&tx.ID, &tx.Reference, &txType, &tx.SourceWalletID, &tx.TargetWalletID,
		&amount, &tx.Currency, &status, &metadata, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = parsed
	tx.Type = Type(txType)
	tx.Status = Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}

func direction(order SortOrder) string {
	if order == OrderAsc {
		return "ASC"
	}
	return "DESC"
}
