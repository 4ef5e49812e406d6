package state

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/policy"
)

var at = time.Date(2026, time.May, 4, 8, 30, 0, 0, time.UTC)

func seeded(t *testing.T) VaultState {
	t.Helper()
	st := New()
	if err := st.AddMember("founder", "Founder", RoleAdmin, at); err != nil {
		t.Fatalf("add founder: %v", err)
	}
	if err := st.AddWallet("w-1", "Main", "ICP", at); err != nil {
		t.Fatalf("add wallet: %v", err)
	}
	return st
}

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if !apperrors.IsCode(err, code) {
		t.Fatalf("err = %v, want %s", err, code)
	}
}

func TestAddMemberRejectsDuplicate(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	wantCode(t, st.AddMember("founder", "Again", RoleMember, at), apperrors.CodeMemberAlreadyExists)
}

func TestLastAdminCannotLeave(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*VaultState) error
	}{
		{"remove", func(s *VaultState) error { return s.RemoveMember("founder") }},
		{"demote", func(s *VaultState) error { return s.SetMemberRole("founder", RoleMember, at) }},
		{"archive", func(s *VaultState) error { return s.SetMemberState("founder", MemberArchived, at) }},
	}
	for _, tc := range tests {
		st := seeded(t)
		err := tc.mutate(&st)
		if !apperrors.IsCode(err, apperrors.CodeLessThanOneAdmin) {
			t.Fatalf("%s: err = %v, want %s", tc.name, err, apperrors.CodeLessThanOneAdmin)
		}
		member, ok := st.Member("founder")
		if !ok || member.Role != RoleAdmin || !member.Active() {
			t.Fatalf("%s: founder = %+v, %v; want unchanged", tc.name, member, ok)
		}
	}
}

func TestQuorumBoundByActiveAdmins(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	wantCode(t, st.SetQuorum(2, at), apperrors.CodeQuorumNotReachable)
	wantCode(t, st.SetQuorum(0, at), apperrors.CodeQuorumNotReachable)

	if err := st.AddMember("bob", "Bob", RoleAdmin, at); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := st.SetQuorum(2, at); err != nil {
		t.Fatalf("set quorum: %v", err)
	}
	wantCode(t, st.SetMemberState("bob", MemberArchived, at), apperrors.CodeQuorumNotReachable)
	if member, _ := st.Member("bob"); !member.Active() {
		t.Fatal("bob should stay active after rejected archive")
	}
	if got := st.ActiveAdmins(); got != 2 {
		t.Fatalf("active admins = %d, want 2", got)
	}
}

func TestVoters(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	if err := st.AddMember("carol", "Carol", RoleMember, at); err != nil {
		t.Fatalf("add carol: %v", err)
	}
	if err := st.AddMember("dave", "Dave", RoleMember, at); err != nil {
		t.Fatalf("add dave: %v", err)
	}
	if err := st.SetMemberState("dave", MemberArchived, at); err != nil {
		t.Fatalf("archive dave: %v", err)
	}
	if got := st.Voters(false); len(got) != 2 {
		t.Fatalf("voters = %v, want founder and carol", got)
	}
	if got := st.Voters(true); len(got) != 1 || got[0] != "founder" {
		t.Fatalf("admin voters = %v, want [founder]", got)
	}
}

func TestWalletLifecycle(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	wantCode(t, st.AddWallet("w-1", "Dup", "ICP", at), apperrors.CodeUIDAlreadyExists)
	wantCode(t, st.RenameWallet("missing", "x", at), apperrors.CodeWalletNotExists)

	later := at.Add(time.Hour)
	if err := st.RenameWallet("w-1", "Treasury", later); err != nil {
		t.Fatalf("rename: %v", err)
	}
	wallet, _ := st.Wallet("w-1")
	if wallet.Name != "Treasury" || !wallet.ModifiedAt.Equal(later) || !wallet.CreatedAt.Equal(at) {
		t.Fatalf("wallet = %+v", wallet)
	}
}

func TestPolicyLifecycle(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	two := uint8(2)
	if err := st.AddPolicy(policy.Policy{UID: "p-1", AmountThreshold: 10, MemberThreshold: &two}, at); err != nil {
		t.Fatalf("add policy: %v", err)
	}
	wantCode(t, st.AddPolicy(policy.Policy{UID: "p-1", AmountThreshold: 20}, at), apperrors.CodeUIDAlreadyExists)
	wantCode(t, st.AddPolicy(policy.Policy{UID: "p-2", AmountThreshold: 10}, at), apperrors.CodeThresholdAlreadyExists)
	wantCode(t, st.AddPolicy(policy.Policy{UID: "p-3", Wallets: []string{"w-9"}}, at), apperrors.CodeWalletNotExists)

	// An explicit wallet list may share a wildcard's amount threshold.
	if err := st.AddPolicy(policy.Policy{UID: "p-4", AmountThreshold: 10, Wallets: []string{"w-1"}}, at); err != nil {
		t.Fatalf("add scoped policy: %v", err)
	}

	if err := st.UpdatePolicy("p-1", nil, 50, at.Add(time.Minute)); err != nil {
		t.Fatalf("update policy: %v", err)
	}
	updated, _ := st.Policy("p-1")
	if !updated.AllMembers() || updated.AmountThreshold != 50 {
		t.Fatalf("updated policy = %+v", updated)
	}
	wantCode(t, st.UpdatePolicy("nope", nil, 1, at), apperrors.CodePolicyNotExists)

	if err := st.RemovePolicy("p-4"); err != nil {
		t.Fatalf("remove policy: %v", err)
	}
	wantCode(t, st.RemovePolicy("p-4"), apperrors.CodePolicyNotExists)
	if len(st.Policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(st.Policies))
	}
}

func TestCloneDoesNotShare(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	if err := st.AddPolicy(policy.Policy{UID: "p", Wallets: []string{"w-1"}}, at); err != nil {
		t.Fatalf("add policy: %v", err)
	}
	st.SetControllers([]string{"ctrl-a"})

	clone := st.Clone()
	clone.Members[0].Name = "changed"
	clone.Policies[0].Wallets[0] = "w-2"
	clone.Controllers[0] = "ctrl-b"

	if st.Members[0].Name != "Founder" {
		t.Fatal("members shared")
	}
	if st.Policies[0].Wallets[0] != "w-1" {
		t.Fatal("policy wallets shared")
	}
	if st.Controllers[0] != "ctrl-a" {
		t.Fatal("controllers shared")
	}
}

func TestSetMemberAccount(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	wantCode(t, st.SetMemberAccount("ghost", "acc-1", at), apperrors.CodeMemberNotExists)
	if err := st.SetMemberAccount("founder", "acc-1", at); err != nil {
		t.Fatalf("set account: %v", err)
	}
	wantCode(t, st.SetMemberAccount("founder", "acc-2", at), apperrors.CodeMemberAlreadyExists)
	if member, _ := st.Member("founder"); member.Account != "acc-1" {
		t.Fatalf("account = %q, want acc-1", member.Account)
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	st := seeded(t)
	if err := st.AddToken(Token{Ledger: "ckbtc-ledger", Index: "ckbtc-index"}); err != nil {
		t.Fatalf("add token: %v", err)
	}
	wantCode(t, st.AddToken(Token{Ledger: "ckbtc-ledger"}), apperrors.CodeUIDAlreadyExists)

	clone := st.Clone()
	clone.Tokens[0].Index = "other"
	if st.Tokens[0].Index != "ckbtc-index" {
		t.Fatal("tokens shared")
	}

	st.RemoveToken("unknown")
	if len(st.Tokens) != 1 {
		t.Fatalf("tokens = %d, want 1", len(st.Tokens))
	}
	st.RemoveToken("ckbtc-ledger")
	if len(st.Tokens) != 0 {
		t.Fatalf("tokens = %+v, want none", st.Tokens)
	}
}
