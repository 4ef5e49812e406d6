package engine

import (
	"fmt"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/policy"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// blocks reports whether earlier, still in flight, must settle before tx
// may resolve its threshold.
//
// Configuration changes and upgrades share one lane. Fund movements queue
// per wallet, and behind any configuration change that could alter the
// policy, voters, or wallet they resolve against. Purge never waits.
func blocks(earlier, tx transaction.Transaction) bool {
	if tx.Kind == transaction.KindPurge {
		return false
	}
	if earlier.State == transaction.StateExecuted && earlier.BatchUID == tx.BatchUID {
		// Members of one batch run in order; only outsiders wait on the batch.
		return false
	}
	if tx.IsVaultState || tx.Kind == transaction.KindVersionUpgrade {
		return earlier.IsVaultState
	}
	movement, ok := transaction.MovementOf(tx.Payload)
	if !ok {
		return false
	}
	if other, ok := transaction.MovementOf(earlier.Payload); ok {
		return other.WalletUID == movement.WalletUID
	}
	if !earlier.IsVaultState {
		return false
	}
	switch p := earlier.Payload.(type) {
	case transaction.PolicyCreate, transaction.PolicyUpdate, transaction.PolicyRemove,
		transaction.MemberCreate, transaction.MemberRemove, transaction.MemberUpdateRole,
		transaction.MemberArchive, transaction.MemberUnarchive:
		return true
	case transaction.WalletCreate:
		return p.UID == movement.WalletUID
	case transaction.QuorumUpdate:
		return tx.Kind.UsesQuorum()
	default:
		return false
	}
}

// inFlight reports whether tx can still change what later transactions
// resolve against: it is unfinished, or it executed as part of a batch
// whose other members may yet unwind it.
func inFlight(tx transaction.Transaction, openBatches map[string]struct{}) bool {
	if tx.State.Unfinished() {
		return true
	}
	if tx.State != transaction.StateExecuted || tx.BatchUID == "" {
		return false
	}
	_, open := openBatches[tx.BatchUID]
	return open
}

// openBatches returns the batches with at least one unfinished member.
func openBatches(txs []transaction.Transaction) map[string]struct{} {
	open := make(map[string]struct{})
	for _, tx := range txs {
		if tx.BatchUID != "" && tx.State.Unfinished() {
			open[tx.BatchUID] = struct{}{}
		}
	}
	return open
}

// resolveThreshold computes the approvals tx needs against st.
func resolveThreshold(tx transaction.Transaction, st state.VaultState) (uint8, string, error) {
	if tx.Kind.UsesQuorum() {
		return st.Quorum.Value, "", nil
	}
	movement, ok := transaction.MovementOf(tx.Payload)
	if !ok {
		return 0, "", fmt.Errorf("transaction %d: %s has no threshold rule", tx.ID, tx.Kind)
	}
	if _, ok := st.Wallet(movement.WalletUID); !ok {
		return 0, "", apperrors.WithMetadata(apperrors.CodeWalletNotExists,
			fmt.Sprintf("wallet %s does not exist", movement.WalletUID),
			map[string]string{"WalletUID": movement.WalletUID})
	}
	chosen, err := policy.Resolve(st.Policies, movement.WalletUID, movement.Amount)
	if err != nil {
		return 0, "", err
	}
	return chosen.Threshold(len(st.Voters(false))), chosen.UID, nil
}

// tally decides a Pending transaction from the votes of currently eligible
// voters. Rejection happens once the voters who have not rejected can no
// longer reach the threshold.
func tally(tx transaction.Transaction, st state.VaultState) transaction.State {
	if tx.State != transaction.StatePending || tx.Threshold == nil {
		return tx.State
	}
	eligible := st.Voters(tx.Kind.AdminOnly())
	approvals, rejections := 0, 0
	for _, voter := range eligible {
		vote, ok := tx.VoteOf(voter)
		if !ok {
			continue
		}
		switch vote.Status {
		case transaction.VoteApproved:
			approvals++
		case transaction.VoteRejected:
			rejections++
		}
	}
	threshold := int(*tx.Threshold)
	switch {
	case approvals >= threshold:
		return transaction.StateApproved
	case len(eligible)-rejections < threshold:
		return transaction.StateRejected
	default:
		return transaction.StatePending
	}
}

// advance promotes unblocked transactions and tallies pending ones until
// nothing changes. A promotion failure for a transaction with id >= strict
// is returned instead of being recorded, so requests can fail synchronously.
func (c *change) advance(strict uint64) error {
	for {
		progressed, err := c.advancePass(strict)
		if err != nil || !progressed {
			return err
		}
	}
}

func (c *change) advancePass(strict uint64) (bool, error) {
	st, err := c.e.stateLocked()
	if err != nil {
		return false, err
	}
	batches := openBatches(c.e.txs)
	var open []uint64
	progressed := false
	for i := range c.e.txs {
		tx := c.e.txs[i]
		if !tx.State.Unfinished() {
			if inFlight(tx, batches) {
				open = append(open, tx.ID)
			}
			continue
		}
		switch tx.State {
		case transaction.StateBlocked:
			if blockedBy(c.e.txs, open, tx) {
				break
			}
			if err := c.promote(tx.ID, st, strict); err != nil {
				return false, err
			}
			progressed = true
		case transaction.StatePending:
			if next := tally(tx, st); next != tx.State {
				c.decide(tx.ID, next)
				progressed = true
			}
		}
		if c.e.txs[i].State.Unfinished() {
			open = append(open, tx.ID)
		}
		if progressed && c.e.current == nil {
			// A batch was unwound; restart against the new projection.
			return true, nil
		}
	}
	return progressed, nil
}

func blockedBy(txs []transaction.Transaction, open []uint64, tx transaction.Transaction) bool {
	for _, id := range open {
		if blocks(txs[id-1], tx) {
			return true
		}
	}
	return false
}

// promote resolves the threshold of a Blocked transaction and tallies the
// votes it collected while waiting.
func (c *change) promote(id uint64, st state.VaultState, strict uint64) error {
	current := c.e.txs[id-1]
	threshold, policyUID, err := resolveThreshold(current, st)
	if err != nil {
		if strict > 0 && id >= strict {
			return err
		}
		c.finish(id, transaction.StateRejected, failureOf(err), "")
		c.failBatch(id)
		return nil
	}
	tx := c.touch(id)
	tx.Threshold = &threshold
	tx.PolicyUID = policyUID
	tx.State = transaction.StatePending
	tx.ModifiedAt = c.e.now()
	if next := tally(*tx, st); next != transaction.StatePending {
		c.decide(id, next)
	}
	return nil
}

// decide applies a tally outcome.
func (c *change) decide(id uint64, next transaction.State) {
	if next == transaction.StateApproved {
		tx := c.touch(id)
		tx.State = next
		tx.ModifiedAt = c.e.now()
		return
	}
	c.finish(id, next, nil, "")
	c.failBatch(id)
}

// failBatch gives every other member of the transaction's batch the same
// outcome, including members that already executed.
func (c *change) failBatch(id uint64) {
	trigger := c.e.txs[id-1]
	if trigger.BatchUID == "" {
		return
	}
	memo := fmt.Sprintf("batch %s: transaction %d ended %s", trigger.BatchUID, trigger.ID, trigger.State)
	for i := range c.e.txs {
		member := c.e.txs[i]
		if member.ID == trigger.ID || member.BatchUID != trigger.BatchUID {
			continue
		}
		if !member.State.Unfinished() && member.State != transaction.StateExecuted {
			continue
		}
		c.finish(member.ID, trigger.State, trigger.Error, memo)
	}
}
