// Package sqlite provides a SQLite-backed transaction log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/sharedvault/internal/platform/grpc/pagination"
	sqlitemigrate "github.com/louisbranch/sharedvault/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/sharedvault/internal/services/vault/core/filter"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists the transaction log in SQLite.
//
// Indexed columns mirror the filterable fields; body holds the full
// transaction as JSON and is the source of truth on read.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite transaction store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendTransactions inserts new transactions in one SQL transaction.
func (s *Store) AppendTransactions(ctx context.Context, txs []transaction.Transaction) error {
	return s.write(ctx, "append transactions", txs, func(ctx context.Context, sqlTx *sql.Tx, row transactionRow) error {
		_, err := sqlTx.ExecContext(
			ctx,
			`INSERT INTO transactions (
			   id, kind, state, initiator, batch_uid, policy_uid, wallet_uid,
			   is_vault_state, created_at, modified_at, body
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.args()...,
		)
		if err != nil && isTransactionUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return err
	})
}

// SaveTransactions overwrites existing transactions in one SQL transaction.
func (s *Store) SaveTransactions(ctx context.Context, txs []transaction.Transaction) error {
	return s.write(ctx, "save transactions", txs, func(ctx context.Context, sqlTx *sql.Tx, row transactionRow) error {
		args := row.args()
		result, err := sqlTx.ExecContext(
			ctx,
			`UPDATE transactions
			    SET kind = ?, state = ?, initiator = ?, batch_uid = ?, policy_uid = ?, wallet_uid = ?,
			        is_vault_state = ?, created_at = ?, modified_at = ?, body = ?
			  WHERE id = ?`,
			append(args[1:], args[0])...,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) write(ctx context.Context, op string, txs []transaction.Transaction, exec func(context.Context, *sql.Tx, transactionRow) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(txs) == 0 {
		return nil
	}
	rows := make([]transactionRow, 0, len(txs))
	for _, tx := range txs {
		if tx.ID == 0 {
			return fmt.Errorf("transaction id is required")
		}
		row, err := newTransactionRow(tx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		rows = append(rows, row)
	}

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	for _, row := range rows {
		if err := exec(ctx, sqlTx, row); err != nil {
			_ = sqlTx.Rollback()
			if errors.Is(err, storage.ErrAlreadyExists) || errors.Is(err, storage.ErrNotFound) {
				return err
			}
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// GetTransaction returns one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uint64) (transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return transaction.Transaction{}, err
	}
	if s == nil || s.sqlDB == nil {
		return transaction.Transaction{}, fmt.Errorf("storage is not configured")
	}

	var body string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT body FROM transactions WHERE id = ?`, int64(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.Transaction{}, storage.ErrNotFound
		}
		return transaction.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return decodeBody(body)
}

// ListTransactions returns up to limit transactions with id > afterID.
func (s *Store) ListTransactions(ctx context.Context, afterID uint64, limit int) ([]transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.query(ctx, "list transactions",
		`SELECT body FROM transactions WHERE id > ? ORDER BY id ASC LIMIT ?`,
		int64(afterID), limit,
	)
}

// QueryTransactions returns one filtered page of transactions.
func (s *Store) QueryTransactions(ctx context.Context, query storage.TransactionQuery) (storage.TransactionPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TransactionPage{}, fmt.Errorf("storage is not configured")
	}
	if query.PageSize <= 0 {
		return storage.TransactionPage{}, fmt.Errorf("page size must be greater than zero")
	}
	afterID, err := pagination.ParseCursorToken(query.PageToken)
	if err != nil {
		return storage.TransactionPage{}, err
	}
	cond, err := filter.Parse(query.Filter)
	if err != nil {
		return storage.TransactionPage{}, err
	}

	where := "id > ?"
	params := []any{int64(afterID)}
	if !cond.Empty() {
		where += " AND " + cond.Clause
		params = append(params, cond.Params...)
	}
	params = append(params, query.PageSize+1)

	txs, err := s.query(ctx, "query transactions",
		`SELECT body FROM transactions WHERE `+where+` ORDER BY id ASC LIMIT ?`,
		params...,
	)
	if err != nil {
		return storage.TransactionPage{}, err
	}
	page := storage.TransactionPage{Transactions: txs}
	if len(page.Transactions) > query.PageSize {
		page.NextPageToken = pagination.CursorToken(page.Transactions[query.PageSize-1].ID)
		page.Transactions = page.Transactions[:query.PageSize]
	}
	return page, nil
}

func (s *Store) query(ctx context.Context, op, statement string, args ...any) ([]transaction.Transaction, error) {
	rows, err := s.sqlDB.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tx, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type transactionRow struct {
	tx   transaction.Transaction
	body string
}

func newTransactionRow(tx transaction.Transaction) (transactionRow, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return transactionRow{}, fmt.Errorf("encode transaction %d: %w", tx.ID, err)
	}
	return transactionRow{tx: tx, body: string(body)}, nil
}

// args returns the insert column values, id first.
func (r transactionRow) args() []any {
	vaultState := 0
	if r.tx.IsVaultState {
		vaultState = 1
	}
	return []any{
		int64(r.tx.ID),
		string(r.tx.Kind),
		string(r.tx.State),
		r.tx.Initiator,
		r.tx.BatchUID,
		r.tx.PolicyUID,
		storage.WalletUID(r.tx),
		vaultState,
		toMillis(r.tx.CreatedAt),
		toMillis(r.tx.ModifiedAt),
		r.body,
	}
}

func decodeBody(body string) (transaction.Transaction, error) {
	var tx transaction.Transaction
	if err := json.Unmarshal([]byte(body), &tx); err != nil {
		return transaction.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

func isTransactionUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "transactions.id")
}

var _ storage.TransactionStore = (*Store)(nil)
