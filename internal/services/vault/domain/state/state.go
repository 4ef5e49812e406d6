// Package state defines the vault configuration snapshot that replaying
// executed transactions produces.
package state

import (
	"slices"
	"time"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/policy"
)

// DefaultQuorum is the quorum of a vault no transaction has changed yet.
const DefaultQuorum uint8 = 1

// Role is a member's authority inside the vault.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// MemberState tracks whether a member may still act.
type MemberState string

const (
	MemberActive   MemberState = "ACTIVE"
	MemberArchived MemberState = "ARCHIVED"
)

// Member is one vault participant.
type Member struct {
	UserID     string      `json:"user_id"`
	Name       string      `json:"name"`
	Role       Role        `json:"role"`
	State      MemberState `json:"state"`
	Account    string      `json:"account,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// Active reports whether the member may vote and initiate.
func (m Member) Active() bool {
	return m.State == MemberActive
}

// Wallet is a named custody account.
type Wallet struct {
	UID        string    `json:"uid"`
	Name       string    `json:"name"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Token is a token ledger the vault tracks balances on.
type Token struct {
	Ledger string `json:"ledger"`
	Index  string `json:"index,omitempty"`
}

// Quorum is the admin approval count for configuration changes.
type Quorum struct {
	Value      uint8     `json:"value"`
	ModifiedAt time.Time `json:"modified_at"`
}

// VaultState is the configuration of the vault at some point of its log.
type VaultState struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Members     []Member        `json:"members"`
	Quorum      Quorum          `json:"quorum"`
	Wallets     []Wallet        `json:"wallets"`
	Policies    []policy.Policy `json:"policies"`
	Controllers []string        `json:"controllers"`
	Tokens      []Token         `json:"tokens"`
}

// New returns the state of a vault before any transaction executed.
func New() VaultState {
	return VaultState{Quorum: Quorum{Value: DefaultQuorum}}
}

// Clone returns a deep copy.
func (s VaultState) Clone() VaultState {
	out := s
	out.Members = slices.Clone(s.Members)
	out.Wallets = slices.Clone(s.Wallets)
	out.Controllers = slices.Clone(s.Controllers)
	out.Tokens = slices.Clone(s.Tokens)
	out.Policies = make([]policy.Policy, len(s.Policies))
	for i, p := range s.Policies {
		out.Policies[i] = p.Clone()
	}
	if s.Policies == nil {
		out.Policies = nil
	}
	return out
}

// Member returns the member with userID.
func (s VaultState) Member(userID string) (Member, bool) {
	idx := s.memberIndex(userID)
	if idx < 0 {
		return Member{}, false
	}
	return s.Members[idx], true
}

// Wallet returns the wallet with uid.
func (s VaultState) Wallet(uid string) (Wallet, bool) {
	idx := s.walletIndex(uid)
	if idx < 0 {
		return Wallet{}, false
	}
	return s.Wallets[idx], true
}

// Policy returns the policy with uid.
func (s VaultState) Policy(uid string) (policy.Policy, bool) {
	idx := s.policyIndex(uid)
	if idx < 0 {
		return policy.Policy{}, false
	}
	return s.Policies[idx].Clone(), true
}

// ActiveAdmins counts members who are both active and admins.
func (s VaultState) ActiveAdmins() int {
	n := 0
	for _, m := range s.Members {
		if m.Active() && m.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// Voters lists the active members allowed to vote. When adminOnly is set,
// only admins qualify.
func (s VaultState) Voters(adminOnly bool) []string {
	out := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		if !m.Active() {
			continue
		}
		if adminOnly && m.Role != RoleAdmin {
			continue
		}
		out = append(out, m.UserID)
	}
	return out
}

func (s VaultState) memberIndex(userID string) int {
	return slices.IndexFunc(s.Members, func(m Member) bool { return m.UserID == userID })
}

func (s VaultState) walletIndex(uid string) int {
	return slices.IndexFunc(s.Wallets, func(w Wallet) bool { return w.UID == uid })
}

func (s VaultState) policyIndex(uid string) int {
	return slices.IndexFunc(s.Policies, func(p policy.Policy) bool { return p.UID == uid })
}
