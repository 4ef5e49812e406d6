package policy

import (
	"strconv"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
)

// Outranks reports whether a takes priority over b when both match a transfer.
//
// Priority, highest first: larger AmountThreshold; "all members" over any
// concrete count, then the larger count; an explicit wallet list over the
// wildcard. Remaining ties fall to the lexically smaller UID.
func Outranks(a, b Policy) bool {
	if a.AmountThreshold != b.AmountThreshold {
		return a.AmountThreshold > b.AmountThreshold
	}
	if a.AllMembers() != b.AllMembers() {
		return a.AllMembers()
	}
	if !a.AllMembers() && *a.MemberThreshold != *b.MemberThreshold {
		return *a.MemberThreshold > *b.MemberThreshold
	}
	if a.Wildcard() != b.Wildcard() {
		return !a.Wildcard()
	}
	return a.UID < b.UID
}

// Resolve selects the policy governing a transfer of amount from wallet.
func Resolve(policies []Policy, wallet string, amount uint64) (Policy, error) {
	var (
		best  Policy
		found bool
	)
	for _, candidate := range policies {
		if !candidate.Matches(wallet, amount) {
			continue
		}
		if !found || Outranks(candidate, best) {
			best = candidate
			found = true
		}
	}
	if !found {
		return Policy{}, apperrors.WithMetadata(
			apperrors.CodeCouldNotDefinePolicy,
			"no policy matches wallet "+wallet+" for amount "+strconv.FormatUint(amount, 10),
			map[string]string{"WalletUID": wallet, "Amount": strconv.FormatUint(amount, 10)},
		)
	}
	return best.Clone(), nil
}
