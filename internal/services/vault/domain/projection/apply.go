// Package projection rebuilds vault state by folding executed transactions.
package projection

import (
	"fmt"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/policy"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

// Apply folds one vault-state transaction into st. Timestamps come from the
// transaction so that replays reproduce the same state.
//
// On error st is left as it was.
func Apply(st *state.VaultState, tx transaction.Transaction) error {
	if st == nil {
		return fmt.Errorf("state is required")
	}
	at := tx.ModifiedAt
	switch p := tx.Payload.(type) {
	case transaction.MemberCreate:
		return st.AddMember(p.UserID, p.Name, p.Role, at)
	case transaction.MemberRemove:
		return st.RemoveMember(p.UserID)
	case transaction.MemberUpdateName:
		return st.RenameMember(p.UserID, p.Name, at)
	case transaction.MemberUpdateRole:
		return st.SetMemberRole(p.UserID, p.Role, at)
	case transaction.MemberArchive:
		return st.SetMemberState(p.UserID, state.MemberArchived, at)
	case transaction.MemberUnarchive:
		return st.SetMemberState(p.UserID, state.MemberActive, at)
	case transaction.MemberExtendAccount:
		return st.SetMemberAccount(p.UserID, p.Account, at)
	case transaction.QuorumUpdate:
		return st.SetQuorum(p.Quorum, at)
	case transaction.WalletCreate:
		return st.AddWallet(p.UID, p.Name, p.Currency, at)
	case transaction.WalletUpdateName:
		return st.RenameWallet(p.UID, p.Name, at)
	case transaction.PolicyCreate:
		return st.AddPolicy(policy.Policy{
			UID:             p.UID,
			MemberThreshold: p.MemberThreshold,
			AmountThreshold: p.AmountThreshold,
			Wallets:         p.Wallets,
			Currency:        p.Currency,
		}, at)
	case transaction.PolicyUpdate:
		return st.UpdatePolicy(p.UID, p.MemberThreshold, p.AmountThreshold, at)
	case transaction.PolicyRemove:
		return st.RemovePolicy(p.UID)
	case transaction.VaultNaming:
		st.Rename(p.Name, p.Description)
		return nil
	case transaction.ControllersUpdate:
		st.SetControllers(p.Controllers)
		return nil
	case transaction.TokenAdd:
		return st.AddToken(state.Token{Ledger: p.Ledger, Index: p.Index})
	case transaction.TokenRemove:
		st.RemoveToken(p.Ledger)
		return nil
	case transaction.VersionUpgrade, transaction.Transfer, transaction.TransferQuorum,
		transaction.TopUp, transaction.TopUpQuorum, transaction.Purge:
		return fmt.Errorf("transaction %d: %s does not change vault state", tx.ID, tx.Kind)
	default:
		return fmt.Errorf("transaction %d: unsupported payload %T", tx.ID, tx.Payload)
	}
}

// Folds reports whether tx contributes to the projected state.
func Folds(tx transaction.Transaction) bool {
	return tx.IsVaultState && tx.State == transaction.StateExecuted
}
