package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/projection"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"golang.org/x/mod/semver"
)

// Execute runs Approved transactions in id order until none is left,
// including ones that become Approved as earlier executions unblock them.
//
// Outcomes are recorded on the transactions. Only a collaborator fault
// other than a rejection is returned; the transaction then stays Approved
// for a later call.
func (e *Engine) Execute(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "vault.Execute")
	defer span.End()
	defer func() { err = recordSpan(span, err) }()

	e.execMu.Lock()
	defer e.execMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, ok, err := e.nextApproved(ctx)
		if err != nil || !ok {
			return err
		}
		if err := e.run(ctx, tx); err != nil {
			return err
		}
	}
}

// nextApproved advances the queue and returns the earliest Approved transaction.
func (e *Engine) nextApproved(ctx context.Context) (transaction.Transaction, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.begin()
	if err := c.advance(0); err != nil {
		c.rollback()
		return transaction.Transaction{}, false, err
	}
	if err := c.commit(ctx); err != nil {
		return transaction.Transaction{}, false, err
	}
	for _, tx := range e.txs {
		if tx.State == transaction.StateApproved {
			return tx.Clone(), true, nil
		}
	}
	return transaction.Transaction{}, false, nil
}

func (e *Engine) run(ctx context.Context, tx transaction.Transaction) error {
	switch p := tx.Payload.(type) {
	case transaction.Purge:
		return e.settle(ctx, tx.ID, func(c *change) {
			e.purge(c, tx.ID)
		})
	case transaction.ControllersUpdate:
		if err := e.external(ctx, tx, func(ctx context.Context) error {
			if e.canisters == nil {
				return fmt.Errorf("canister manager is not configured")
			}
			return e.canisters.UpdateControllers(ctx, e.canisterID, p.Controllers)
		}); err != nil || !e.stillApproved(tx.ID) {
			return err
		}
		return e.settle(ctx, tx.ID, func(c *change) { e.applyState(c, tx.ID) })
	case transaction.VersionUpgrade:
		var memo string
		if err := e.external(ctx, tx, func(ctx context.Context) error {
			var err error
			memo, err = e.upgrade(ctx, p.Version)
			return err
		}); err != nil || !e.stillApproved(tx.ID) {
			return err
		}
		return e.settle(ctx, tx.ID, func(c *change) {
			c.finish(tx.ID, transaction.StateExecuted, nil, memo)
		})
	case transaction.Transfer, transaction.TransferQuorum, transaction.TopUp, transaction.TopUpQuorum:
		var blockIndex uint64
		if err := e.external(ctx, tx, func(ctx context.Context) error {
			var err error
			blockIndex, err = e.transfer(ctx, tx)
			return err
		}); err != nil || !e.stillApproved(tx.ID) {
			return err
		}
		return e.settle(ctx, tx.ID, func(c *change) {
			c.touch(tx.ID).BlockIndex = &blockIndex
			c.finish(tx.ID, transaction.StateExecuted, nil, "")
		})
	default:
		return e.settle(ctx, tx.ID, func(c *change) { e.applyState(c, tx.ID) })
	}
}

// external performs a collaborator call without holding the engine lock.
// A rejection fails the transaction; other errors are returned.
func (e *Engine) external(ctx context.Context, tx transaction.Transaction, call func(context.Context) error) error {
	err := call(ctx)
	if err == nil {
		return nil
	}
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		log.Printf("vault: transaction %d (%s) left approved: %v", tx.ID, tx.Kind, err)
		return fmt.Errorf("execute transaction %d: %w", tx.ID, err)
	}
	log.Printf("vault: transaction %d (%s) rejected by collaborator: %s", tx.ID, tx.Kind, rejection.Reason)
	return e.settle(ctx, tx.ID, func(c *change) {
		c.finish(tx.ID, transaction.StateFailed, &transaction.Error{
			Code:    string(apperrors.CodeExternalCallRejected),
			Message: rejection.Reason,
		}, "")
		c.failBatch(tx.ID)
	})
}

func (e *Engine) stillApproved(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txs[id-1].State == transaction.StateApproved
}

// settle applies fn under the engine lock if the transaction is still
// Approved, then persists what changed.
func (e *Engine) settle(ctx context.Context, id uint64, fn func(c *change)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.txs[id-1].State != transaction.StateApproved {
		return nil
	}
	c := e.begin()
	fn(c)
	return c.commit(ctx)
}

// applyState folds a configuration change into the current state.
// Execution time becomes the effect time, so replays agree with the memo.
func (e *Engine) applyState(c *change, id uint64) {
	st, err := e.stateLocked()
	if err != nil {
		c.finish(id, transaction.StateRejected, failureOf(err), "")
		c.failBatch(id)
		return
	}
	next := st.Clone()
	at := e.now()
	tx := c.touch(id)
	tx.ModifiedAt = at
	if err := projection.Apply(&next, *tx); err != nil {
		c.finish(id, transaction.StateRejected, failureOf(err), "")
		c.failBatch(id)
		return
	}
	tx.Finish(transaction.StateExecuted, nil, "", at)
	e.current = &next
}

// purge clears every queued transaction created before the purge.
func (e *Engine) purge(c *change, id uint64) {
	memo := fmt.Sprintf("purged by transaction %d", id)
	for i := uint64(1); i < id; i++ {
		switch e.txs[i-1].State {
		case transaction.StateBlocked, transaction.StatePending:
			c.finish(i, transaction.StatePurged, nil, memo)
			c.failBatch(i)
		}
	}
	c.finish(id, transaction.StateExecuted, nil, "")
}

func (e *Engine) upgrade(ctx context.Context, version string) (string, error) {
	if e.canisters == nil || e.wasm == nil {
		return "", fmt.Errorf("canister management is not configured")
	}
	current, err := e.canisters.Version(ctx, e.canisterID)
	if err != nil {
		return "", fmt.Errorf("read canister version: %w", err)
	}
	if semver.Compare(version, current) <= 0 {
		return fmt.Sprintf("already running %s", current), nil
	}
	wasm, err := e.wasm.GetByVersion(ctx, version)
	if err != nil {
		return "", fmt.Errorf("load wasm %s: %w", version, err)
	}
	return "", e.canisters.Upgrade(ctx, e.canisterID, wasm, version)
}

func (e *Engine) transfer(ctx context.Context, tx transaction.Transaction) (uint64, error) {
	if e.ledger == nil {
		return 0, fmt.Errorf("ledger is not configured")
	}
	movement, ok := transaction.MovementOf(tx.Payload)
	if !ok {
		return 0, fmt.Errorf("transaction %d does not move funds", tx.ID)
	}
	to := movement.To
	if tx.Kind == transaction.KindTopUp || tx.Kind == transaction.KindTopUpQuorum {
		if e.topUpAccount == "" {
			return 0, Reject("top-up account is not configured")
		}
		to = e.topUpAccount
	}
	return e.ledger.Transfer(ctx, TransferRequest{
		From:     movement.WalletUID,
		To:       to,
		Amount:   movement.Amount,
		Currency: movement.Currency,
		Memo:     movement.Memo,
	})
}
