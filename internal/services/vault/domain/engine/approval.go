package engine

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// Vote is one decision submitted by a caller.
type Vote struct {
	TxID   uint64
	Status transaction.Vote
}

// ApproveTransactions records caller's votes. Every vote is checked before
// any is applied, so a call either records all of them or none.
func (e *Engine) ApproveTransactions(ctx context.Context, caller string, votes []Vote) (_ []transaction.Transaction, err error) {
	ctx, span := e.tracer.Start(ctx, "vault.ApproveTransactions")
	defer span.End()
	defer func() { err = recordSpan(span, err) }()

	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, unauthorised()
	}
	if len(votes) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "at least one vote is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.stateLocked()
	if err != nil {
		return nil, err
	}
	if err := e.checkVotes(st, caller, votes); err != nil {
		return nil, err
	}

	c := e.begin()
	for _, vote := range votes {
		if e.txs[vote.TxID-1].State.Terminal() {
			// Settled by an earlier vote in this call through its batch.
			continue
		}
		tx := c.touch(vote.TxID)
		tx.SetVote(caller, vote.Status, e.now())
		switch {
		case vote.Status == transaction.VoteCanceled:
			c.finish(vote.TxID, transaction.StateCanceled, nil, fmt.Sprintf("canceled by %s", caller))
			c.failBatch(vote.TxID)
		case tx.State == transaction.StatePending:
			if next := tally(*tx, st); next != transaction.StatePending {
				c.decide(vote.TxID, next)
			}
		}
		// A batch unwind may have changed the projection.
		if st, err = e.stateLocked(); err != nil {
			c.rollback()
			return nil, err
		}
	}
	if err := c.advance(0); err != nil {
		c.rollback()
		return nil, err
	}
	if err := c.commit(ctx); err != nil {
		return nil, err
	}

	out := make([]transaction.Transaction, len(votes))
	for i, vote := range votes {
		out[i] = e.txs[vote.TxID-1].Clone()
	}
	return out, nil
}

func (e *Engine) checkVotes(st state.VaultState, caller string, votes []Vote) error {
	seen := make(map[uint64]struct{}, len(votes))
	for _, vote := range votes {
		if !vote.Status.Valid() {
			return apperrors.New(apperrors.CodeInvalidRequest, fmt.Sprintf("unknown vote %q", vote.Status))
		}
		tx, ok := e.lookup(vote.TxID)
		if !ok {
			return nonexistentKey(vote.TxID)
		}
		member, err := activeMember(st, caller)
		if err != nil {
			return err
		}
		if tx.Kind.AdminOnly() && member.Role != state.RoleAdmin {
			return notPermitted(caller, tx.Kind)
		}
		if vote.Status == transaction.VoteCanceled && tx.Initiator != caller {
			return apperrors.WithMetadata(apperrors.CodeNotPermitted,
				fmt.Sprintf("only the initiator may cancel transaction %d", tx.ID),
				map[string]string{"UserID": caller, "Kind": string(tx.Kind)})
		}
		if tx.State.Terminal() || (vote.Status == transaction.VoteCanceled && tx.State == transaction.StateApproved) {
			return apperrors.WithMetadata(apperrors.CodeTransactionImmutable,
				fmt.Sprintf("transaction %d is %s", tx.ID, tx.State),
				map[string]string{"TransactionID": fmt.Sprint(tx.ID), "State": string(tx.State)})
		}
		_, duplicate := seen[vote.TxID]
		_, voted := tx.VoteOf(caller)
		if duplicate || (voted && vote.Status != transaction.VoteCanceled) {
			return apperrors.WithMetadata(apperrors.CodeAlreadyApproved,
				fmt.Sprintf("user %s already voted on transaction %d", caller, tx.ID),
				map[string]string{"UserID": caller, "TransactionID": fmt.Sprint(tx.ID)})
		}
		seen[vote.TxID] = struct{}{}
	}
	return nil
}
