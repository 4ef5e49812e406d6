// Package memory provides an in-process transaction store for tests and
// ephemeral vaults.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/sharedvault/internal/platform/grpc/pagination"
	"github.com/louisbranch/sharedvault/internal/services/vault/core/filter"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
)

// Store keeps transactions in a map keyed by id.
type Store struct {
	mu  sync.RWMutex
	txs map[uint64]transaction.Transaction
}

// New returns an empty store.
func New() *Store {
	return &Store{txs: make(map[uint64]transaction.Transaction)}
}

// Close is a no-op; the log lives only as long as the process.
func (s *Store) Close() error {
	return nil
}

// AppendTransactions inserts new transactions; none are stored if any id is taken.
func (s *Store) AppendTransactions(ctx context.Context, txs []transaction.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uint64]struct{}, len(txs))
	for _, tx := range txs {
		if tx.ID == 0 {
			return fmt.Errorf("transaction id is required")
		}
		if _, ok := s.txs[tx.ID]; ok {
			return storage.ErrAlreadyExists
		}
		if _, ok := seen[tx.ID]; ok {
			return storage.ErrAlreadyExists
		}
		seen[tx.ID] = struct{}{}
	}
	for _, tx := range txs {
		s.txs[tx.ID] = tx.Clone()
	}
	return nil
}

// SaveTransactions overwrites existing transactions; none are stored if any is missing.
func (s *Store) SaveTransactions(ctx context.Context, txs []transaction.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, ok := s.txs[tx.ID]; !ok {
			return storage.ErrNotFound
		}
	}
	for _, tx := range txs {
		s.txs[tx.ID] = tx.Clone()
	}
	return nil
}

// GetTransaction returns one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uint64) (transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return transaction.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return transaction.Transaction{}, storage.ErrNotFound
	}
	return tx.Clone(), nil
}

// ListTransactions returns up to limit transactions with id > afterID.
func (s *Store) ListTransactions(ctx context.Context, afterID uint64, limit int) ([]transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]transaction.Transaction, 0, limit)
	for _, id := range s.sortedIDs() {
		if id <= afterID {
			continue
		}
		out = append(out, s.txs[id].Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// QueryTransactions returns one filtered page of transactions.
func (s *Store) QueryTransactions(ctx context.Context, query storage.TransactionQuery) (storage.TransactionPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TransactionPage{}, err
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := storage.TransactionPage{
		Transactions: make([]transaction.Transaction, 0, query.PageSize),
	}
	for _, id := range s.sortedIDs() {
		if id <= afterID {
			continue
		}
		tx := s.txs[id]
		if !cond.Match(storage.FilterFields(tx)) {
			continue
		}
		if len(page.Transactions) == query.PageSize {
			page.NextPageToken = pagination.CursorToken(page.Transactions[query.PageSize-1].ID)
			break
		}
		page.Transactions = append(page.Transactions, tx.Clone())
	}
	return page, nil
}

func (s *Store) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(s.txs))
	for id := range s.txs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var _ storage.TransactionStore = (*Store)(nil)
