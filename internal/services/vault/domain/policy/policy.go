// Package policy holds approval policies and the resolver that picks the one
// governing a transfer.
package policy

import (
	"slices"
	"time"
)

// Policy maps a wallet scope and an amount floor to an approval threshold.
type Policy struct {
	UID string `json:"uid"`
	// MemberThreshold is nil when every eligible member must approve.
	MemberThreshold *uint8 `json:"member_threshold"`
	AmountThreshold uint64 `json:"amount_threshold"`
	// Wallets is empty when the policy applies to every wallet.
	Wallets    []string  `json:"wallets"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// AllMembers reports whether the policy requires every eligible member.
func (p Policy) AllMembers() bool {
	return p.MemberThreshold == nil
}

// Wildcard reports whether the policy covers every wallet.
func (p Policy) Wildcard() bool {
	return len(p.Wallets) == 0
}

// Covers reports whether the policy applies to wallet.
func (p Policy) Covers(wallet string) bool {
	return p.Wildcard() || slices.Contains(p.Wallets, wallet)
}

// Matches reports whether the policy is a candidate for a transfer.
func (p Policy) Matches(wallet string, amount uint64) bool {
	return p.AmountThreshold <= amount && p.Covers(wallet)
}

// Threshold returns the approvals the policy demands given the number of
// members eligible to vote.
func (p Policy) Threshold(eligible int) uint8 {
	if p.MemberThreshold != nil {
		return *p.MemberThreshold
	}
	if eligible > 255 {
		return 255
	}
	return uint8(eligible)
}

// Conflicts reports whether two policies claim the same amount threshold for
// an overlapping wallet scope. Two wildcard policies overlap; a wildcard and
// an explicit list do not, since the explicit one outranks it.
func (p Policy) Conflicts(other Policy) bool {
	if p.UID == other.UID || p.AmountThreshold != other.AmountThreshold {
		return false
	}
	if p.Wildcard() || other.Wildcard() {
		return p.Wildcard() && other.Wildcard()
	}
	for _, wallet := range p.Wallets {
		if slices.Contains(other.Wallets, wallet) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	out := p
	if p.MemberThreshold != nil {
		value := *p.MemberThreshold
		out.MemberThreshold = &value
	}
	out.Wallets = slices.Clone(p.Wallets)
	return out
}
