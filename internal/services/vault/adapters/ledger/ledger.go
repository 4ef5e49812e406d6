// Package ledger provides an in-memory ledger for local runs and tests.
package ledger

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
)

// Block is one recorded movement.
type Block struct {
	Index    uint64
	From     string
	To       string
	Amount   uint64
	Currency string
	Memo     string
}

// Ledger keeps account balances in memory. Accounts are wallet uids or
// external destinations; balances are not split by currency.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]uint64
	blocks   []Block
}

var _ engine.Ledger = (*Ledger)(nil)

// New returns a ledger seeded with balances.
func New(balances map[string]uint64) *Ledger {
	seeded := make(map[string]uint64, len(balances))
	maps.Copy(seeded, balances)
	return &Ledger{balances: seeded}
}

// Deposit credits an account outside of any transfer.
func (l *Ledger) Deposit(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance returns the funds held by account.
func (l *Ledger) Balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Blocks returns every recorded movement in order.
func (l *Ledger) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Transfer moves funds between accounts. Missing funds and malformed
// requests are rejections; the engine records them on the transaction.
func (l *Ledger) Transfer(ctx context.Context, req engine.TransferRequest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		return 0, engine.Reject("source and destination accounts are required")
	}
	if req.Amount == 0 {
		return 0, engine.Reject("amount must be greater than zero")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[req.From]
	if balance < req.Amount {
		return 0, engine.Reject(fmt.Sprintf("insufficient funds in %s: balance %d, requested %d", req.From, balance, req.Amount))
	}
	l.balances[req.From] = balance - req.Amount
	l.balances[req.To] += req.Amount

	index := uint64(len(l.blocks)) + 1
	l.blocks = append(l.blocks, Block{
		Index:    index,
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Currency: req.Currency,
		Memo:     req.Memo,
	})
	return index, nil
}
