// Package storage defines persistence contracts for the vault transaction log.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/sharedvault/internal/services/vault/core/filter"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

var (
	// ErrNotFound indicates a requested transaction is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a transaction id is already taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// TransactionQuery selects one page of transactions.
type TransactionQuery struct {
	// Filter is an AIP-160 expression over the fields filter.TransactionDeclarations declares.
	Filter    string
	PageSize  int
	PageToken string
}

// TransactionPage stores one page of transactions in ascending id order.
type TransactionPage struct {
	Transactions  []transaction.Transaction
	NextPageToken string
}

// TransactionStore persists the append-only transaction log. Rows are never
// deleted; their mutable fields change as transactions progress.
type TransactionStore interface {
	// AppendTransactions inserts new transactions in one atomic write.
	AppendTransactions(ctx context.Context, txs []transaction.Transaction) error
	// SaveTransactions overwrites existing transactions in one atomic write.
	SaveTransactions(ctx context.Context, txs []transaction.Transaction) error
	GetTransaction(ctx context.Context, id uint64) (transaction.Transaction, error)
	// ListTransactions returns up to limit transactions with id > afterID.
	ListTransactions(ctx context.Context, afterID uint64, limit int) ([]transaction.Transaction, error)
	QueryTransactions(ctx context.Context, query TransactionQuery) (TransactionPage, error)
}

// FilterFields exposes a transaction's filterable columns.
func FilterFields(tx transaction.Transaction) filter.Fields {
	fields := filter.Fields{
		"id":          int64(tx.ID),
		"kind":        string(tx.Kind),
		"state":       string(tx.State),
		"initiator":   tx.Initiator,
		"batch_uid":   tx.BatchUID,
		"policy_uid":  tx.PolicyUID,
		"wallet_uid":  WalletUID(tx),
		"created_at":  tx.CreatedAt.UTC().UnixMilli(),
		"modified_at": tx.ModifiedAt.UTC().UnixMilli(),
	}
	return fields
}

// WalletUID returns the wallet a transaction targets, if any.
func WalletUID(tx transaction.Transaction) string {
	if movement, ok := transaction.MovementOf(tx.Payload); ok {
		return movement.WalletUID
	}
	switch p := tx.Payload.(type) {
	case transaction.WalletCreate:
		return p.UID
	case transaction.WalletUpdateName:
		return p.UID
	}
	return ""
}
