package engine

import (
	"context"
	"sort"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// change records the rows one engine call touched so they can be written
// together, or restored if the write fails. Callers hold e.mu.
type change struct {
	e      *Engine
	base   int
	before map[uint64]transaction.Transaction
}

func (e *Engine) begin() *change {
	return &change{e: e, base: len(e.txs), before: make(map[uint64]transaction.Transaction)}
}

// append adds a new transaction at the end of the log.
func (c *change) append(tx transaction.Transaction) {
	c.e.txs = append(c.e.txs, tx)
}

// touch returns the row for id, remembering its original value.
func (c *change) touch(id uint64) *transaction.Transaction {
	tx := &c.e.txs[id-1]
	if id <= uint64(c.base) {
		if _, ok := c.before[id]; !ok {
			c.before[id] = tx.Clone()
		}
	}
	return tx
}

// finish moves a transaction to a terminal state. Leaving or entering
// Executed changes the projection, so the memo is dropped.
func (c *change) finish(id uint64, next transaction.State, failure *transaction.Error, memo string) {
	tx := c.touch(id)
	if tx.IsVaultState && (tx.State == transaction.StateExecuted || next == transaction.StateExecuted) {
		c.e.current = nil
	}
	tx.Finish(next, failure, memo, c.e.now())
}

func (c *change) empty() bool {
	return len(c.e.txs) == c.base && len(c.before) == 0
}

func (c *change) commit(ctx context.Context) error {
	if c.empty() {
		return nil
	}
	if appended := c.e.txs[c.base:]; len(appended) > 0 {
		rows := make([]transaction.Transaction, len(appended))
		for i, tx := range appended {
			rows[i] = tx.Clone()
		}
		if err := c.e.store.AppendTransactions(ctx, rows); err != nil {
			c.rollback()
			return err
		}
	}
	if len(c.before) > 0 {
		ids := make([]uint64, 0, len(c.before))
		for id := range c.before {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		rows := make([]transaction.Transaction, len(ids))
		for i, id := range ids {
			rows[i] = c.e.txs[id-1].Clone()
		}
		if err := c.e.store.SaveTransactions(ctx, rows); err != nil {
			c.rollback()
			return err
		}
	}
	c.base = len(c.e.txs)
	c.before = make(map[uint64]transaction.Transaction)
	return nil
}

func (c *change) rollback() {
	c.e.txs = c.e.txs[:c.base]
	for id, tx := range c.before {
		c.e.txs[id-1] = tx
	}
	c.before = make(map[uint64]transaction.Transaction)
	c.e.current = nil
}
