package state

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/policy"
)

func memberNotExists(userID string) error {
	return apperrors.WithMetadata(apperrors.CodeMemberNotExists,
		fmt.Sprintf("member %s does not exist", userID),
		map[string]string{"UserID": userID})
}

func walletNotExists(uid string) error {
	return apperrors.WithMetadata(apperrors.CodeWalletNotExists,
		fmt.Sprintf("wallet %s does not exist", uid),
		map[string]string{"WalletUID": uid})
}

func policyNotExists(uid string) error {
	return apperrors.WithMetadata(apperrors.CodePolicyNotExists,
		fmt.Sprintf("policy %s does not exist", uid),
		map[string]string{"PolicyUID": uid})
}

func uidAlreadyExists(uid string) error {
	return apperrors.WithMetadata(apperrors.CodeUIDAlreadyExists,
		fmt.Sprintf("uid %s already exists", uid),
		map[string]string{"UID": uid})
}

func quorumNotReachable(quorum uint8, admins int) error {
	return apperrors.WithMetadata(apperrors.CodeQuorumNotReachable,
		fmt.Sprintf("quorum %d exceeds %d active admins", quorum, admins),
		map[string]string{"Quorum": strconv.Itoa(int(quorum)), "Admins": strconv.Itoa(admins)})
}

// checkAdmins enforces the admin invariants after a membership change.
func (s *VaultState) checkAdmins() error {
	admins := s.ActiveAdmins()
	if admins < 1 {
		return apperrors.New(apperrors.CodeLessThanOneAdmin, "at least one active admin must remain")
	}
	if int(s.Quorum.Value) > admins {
		return quorumNotReachable(s.Quorum.Value, admins)
	}
	return nil
}

// mutateMember applies fn to a copy of the member and keeps it only if the
// admin invariants still hold.
func (s *VaultState) mutateMember(userID string, fn func(*Member)) error {
	idx := s.memberIndex(userID)
	if idx < 0 {
		return memberNotExists(userID)
	}
	previous := s.Members[idx]
	fn(&s.Members[idx])
	if err := s.checkAdmins(); err != nil {
		s.Members[idx] = previous
		return err
	}
	return nil
}

// AddMember appends an active member.
func (s *VaultState) AddMember(userID, name string, role Role, at time.Time) error {
	if s.memberIndex(userID) >= 0 {
		return apperrors.WithMetadata(apperrors.CodeMemberAlreadyExists,
			fmt.Sprintf("member %s already exists", userID),
			map[string]string{"UserID": userID})
	}
	s.Members = append(s.Members, Member{
		UserID:     userID,
		Name:       name,
		Role:       role,
		State:      MemberActive,
		CreatedAt:  at,
		ModifiedAt: at,
	})
	return nil
}

// RemoveMember deletes a member.
func (s *VaultState) RemoveMember(userID string) error {
	idx := s.memberIndex(userID)
	if idx < 0 {
		return memberNotExists(userID)
	}
	previous := slices.Clone(s.Members)
	s.Members = slices.Delete(s.Members, idx, idx+1)
	if err := s.checkAdmins(); err != nil {
		s.Members = previous
		return err
	}
	return nil
}

// RenameMember changes a member's display name.
func (s *VaultState) RenameMember(userID, name string, at time.Time) error {
	return s.mutateMember(userID, func(m *Member) {
		m.Name = name
		m.ModifiedAt = at
	})
}

// SetMemberRole changes a member's role.
func (s *VaultState) SetMemberRole(userID string, role Role, at time.Time) error {
	return s.mutateMember(userID, func(m *Member) {
		m.Role = role
		m.ModifiedAt = at
	})
}

// SetMemberState archives or reactivates a member.
func (s *VaultState) SetMemberState(userID string, memberState MemberState, at time.Time) error {
	return s.mutateMember(userID, func(m *Member) {
		m.State = memberState
		m.ModifiedAt = at
	})
}

// SetMemberAccount attaches a ledger account to a member. An account, once
// set, is never replaced.
func (s *VaultState) SetMemberAccount(userID, account string, at time.Time) error {
	idx := s.memberIndex(userID)
	if idx < 0 {
		return memberNotExists(userID)
	}
	if s.Members[idx].Account != "" {
		return apperrors.WithMetadata(apperrors.CodeMemberAlreadyExists,
			fmt.Sprintf("member %s already has account %s", userID, s.Members[idx].Account),
			map[string]string{"UserID": userID})
	}
	s.Members[idx].Account = account
	s.Members[idx].ModifiedAt = at
	return nil
}

// SetQuorum changes the admin approval count.
func (s *VaultState) SetQuorum(value uint8, at time.Time) error {
	admins := s.ActiveAdmins()
	if value == 0 || int(value) > admins {
		return quorumNotReachable(value, admins)
	}
	s.Quorum = Quorum{Value: value, ModifiedAt: at}
	return nil
}

// AddWallet registers a wallet.
func (s *VaultState) AddWallet(uid, name, currency string, at time.Time) error {
	if s.walletIndex(uid) >= 0 {
		return uidAlreadyExists(uid)
	}
	s.Wallets = append(s.Wallets, Wallet{
		UID:        uid,
		Name:       name,
		Currency:   currency,
		CreatedAt:  at,
		ModifiedAt: at,
	})
	return nil
}

// RenameWallet changes a wallet's display name.
func (s *VaultState) RenameWallet(uid, name string, at time.Time) error {
	idx := s.walletIndex(uid)
	if idx < 0 {
		return walletNotExists(uid)
	}
	s.Wallets[idx].Name = name
	s.Wallets[idx].ModifiedAt = at
	return nil
}

// AddPolicy registers a policy after checking its wallets and scope.
func (s *VaultState) AddPolicy(p policy.Policy, at time.Time) error {
	if s.policyIndex(p.UID) >= 0 {
		return uidAlreadyExists(p.UID)
	}
	for _, wallet := range p.Wallets {
		if s.walletIndex(wallet) < 0 {
			return walletNotExists(wallet)
		}
	}
	if err := s.checkPolicyScope(p); err != nil {
		return err
	}
	p = p.Clone()
	p.CreatedAt = at
	p.ModifiedAt = at
	s.Policies = append(s.Policies, p)
	return nil
}

// UpdatePolicy changes a policy's thresholds.
func (s *VaultState) UpdatePolicy(uid string, memberThreshold *uint8, amountThreshold uint64, at time.Time) error {
	idx := s.policyIndex(uid)
	if idx < 0 {
		return policyNotExists(uid)
	}
	updated := s.Policies[idx].Clone()
	updated.AmountThreshold = amountThreshold
	updated.MemberThreshold = nil
	if memberThreshold != nil {
		value := *memberThreshold
		updated.MemberThreshold = &value
	}
	if err := s.checkPolicyScope(updated); err != nil {
		return err
	}
	updated.ModifiedAt = at
	s.Policies[idx] = updated
	return nil
}

// RemovePolicy deletes a policy.
func (s *VaultState) RemovePolicy(uid string) error {
	idx := s.policyIndex(uid)
	if idx < 0 {
		return policyNotExists(uid)
	}
	s.Policies = slices.Delete(s.Policies, idx, idx+1)
	return nil
}

// Rename sets the vault's name and description.
func (s *VaultState) Rename(name, description string) {
	s.Name = name
	s.Description = description
}

// SetControllers records the principals controlling the vault canister.
func (s *VaultState) SetControllers(controllers []string) {
	s.Controllers = slices.Clone(controllers)
}

// AddToken starts tracking a token ledger.
func (s *VaultState) AddToken(token Token) error {
	if slices.ContainsFunc(s.Tokens, func(t Token) bool { return t.Ledger == token.Ledger }) {
		return uidAlreadyExists(token.Ledger)
	}
	s.Tokens = append(s.Tokens, token)
	return nil
}

// RemoveToken stops tracking a token ledger. Removing an untracked ledger
// changes nothing.
func (s *VaultState) RemoveToken(ledger string) {
	s.Tokens = slices.DeleteFunc(s.Tokens, func(t Token) bool { return t.Ledger == ledger })
}

func (s *VaultState) checkPolicyScope(p policy.Policy) error {
	for _, existing := range s.Policies {
		if existing.Conflicts(p) {
			return apperrors.WithMetadata(apperrors.CodeThresholdAlreadyExists,
				fmt.Sprintf("policy %s already uses amount threshold %d for these wallets", existing.UID, p.AmountThreshold),
				map[string]string{"PolicyUID": existing.UID})
		}
	}
	return nil
}
