package transaction

// Kind names a transaction variant.
type Kind string

const (
	KindMemberCreate      Kind = "member.create"
	KindMemberRemove      Kind = "member.remove"
	KindMemberUpdateName  Kind = "member.update_name"
	KindMemberUpdateRole  Kind = "member.update_role"
	KindMemberArchive     Kind = "member.archive"
	KindMemberUnarchive   Kind = "member.unarchive"
	KindMemberAccount     Kind = "member.extend_account"
	KindQuorumUpdate      Kind = "quorum.update"
	KindWalletCreate      Kind = "wallet.create"
	KindWalletUpdateName  Kind = "wallet.update_name"
	KindPolicyCreate      Kind = "policy.create"
	KindPolicyUpdate      Kind = "policy.update"
	KindPolicyRemove      Kind = "policy.remove"
	KindVaultNaming       Kind = "vault.naming"
	KindControllersUpdate Kind = "controllers.update"
	KindTokenAdd          Kind = "token.add"
	KindTokenRemove       Kind = "token.remove"
	KindVersionUpgrade    Kind = "version.upgrade"
	KindTransfer          Kind = "transfer"
	KindTransferQuorum    Kind = "transfer.quorum"
	KindTopUp             Kind = "top_up"
	KindTopUpQuorum       Kind = "top_up.quorum"
	KindPurge             Kind = "purge"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{
	KindMemberCreate,
	KindMemberRemove,
	KindMemberUpdateName,
	KindMemberUpdateRole,
	KindMemberArchive,
	KindMemberUnarchive,
	KindMemberAccount,
	KindQuorumUpdate,
	KindWalletCreate,
	KindWalletUpdateName,
	KindPolicyCreate,
	KindPolicyUpdate,
	KindPolicyRemove,
	KindVaultNaming,
	KindControllersUpdate,
	KindTokenAdd,
	KindTokenRemove,
	KindVersionUpgrade,
	KindTransfer,
	KindTransferQuorum,
	KindTopUp,
	KindTopUpQuorum,
	KindPurge,
}

// IsVaultState reports whether transactions of this kind change the shared
// vault configuration and must therefore run one at a time.
func (k Kind) IsVaultState() bool {
	switch k {
	case KindMemberCreate, KindMemberRemove, KindMemberUpdateName, KindMemberUpdateRole,
		KindMemberArchive, KindMemberUnarchive, KindMemberAccount, KindQuorumUpdate,
		KindWalletCreate, KindWalletUpdateName,
		KindPolicyCreate, KindPolicyUpdate, KindPolicyRemove,
		KindVaultNaming, KindControllersUpdate, KindTokenAdd, KindTokenRemove:
		return true
	default:
		return false
	}
}

// AdminOnly reports whether only admins may initiate and vote.
func (k Kind) AdminOnly() bool {
	switch k {
	case KindVersionUpgrade, KindPurge, KindTransferQuorum, KindTopUpQuorum:
		return true
	default:
		return k.IsVaultState()
	}
}

// UsesQuorum reports whether the threshold is the live quorum rather than a
// resolved policy.
func (k Kind) UsesQuorum() bool {
	return k.AdminOnly()
}

// MovesFunds reports whether the kind debits a wallet through the ledger.
func (k Kind) MovesFunds() bool {
	switch k {
	case KindTransfer, KindTransferQuorum, KindTopUp, KindTopUpQuorum:
		return true
	default:
		return false
	}
}

// CallsOut reports whether executing the kind acts on a collaborator
// outside the log, which cannot be undone if a batch unwinds.
func (k Kind) CallsOut() bool {
	return k == KindControllersUpdate || k == KindVersionUpgrade || k.MovesFunds()
}

// Batchable reports whether the kind may carry a batch uid.
func (k Kind) Batchable() bool {
	return k.IsVaultState() && !k.CallsOut()
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
