package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

const replayPageSize = 200

// Lister pages through the transaction log in ascending id order.
type Lister interface {
	ListTransactions(ctx context.Context, afterID uint64, limit int) ([]transaction.Transaction, error)
}

// Project folds every executed vault-state transaction with id <= cursor.
// A nil cursor folds the whole log.
func Project(ctx context.Context, lister Lister, cursor *uint64) (state.VaultState, error) {
	if lister == nil {
		return state.VaultState{}, fmt.Errorf("transaction lister is not configured")
	}

	st := state.New()
	lastID := uint64(0)
	for {
		page, err := lister.ListTransactions(ctx, lastID, replayPageSize)
		if err != nil {
			return state.VaultState{}, err
		}
		if len(page) == 0 {
			return st, nil
		}
		for _, tx := range page {
			if cursor != nil && tx.ID > *cursor {
				return st, nil
			}
			lastID = tx.ID
			if !Folds(tx) {
				continue
			}
			if err := Apply(&st, tx); err != nil {
				return state.VaultState{}, fmt.Errorf("replay transaction %d: %w", tx.ID, err)
			}
		}
	}
}

// Fold is Project over an in-memory log ordered by id.
func Fold(txs []transaction.Transaction, cursor *uint64) (state.VaultState, error) {
	st := state.New()
	for _, tx := range txs {
		if cursor != nil && tx.ID > *cursor {
			break
		}
		if !Folds(tx) {
			continue
		}
		if err := Apply(&st, tx); err != nil {
			return state.VaultState{}, fmt.Errorf("replay transaction %d: %w", tx.ID, err)
		}
	}
	return st, nil
}
