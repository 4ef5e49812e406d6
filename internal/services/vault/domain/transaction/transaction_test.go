package transaction

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
)

func TestKindClassification(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds {
		if !kind.Valid() {
			t.Fatalf("%s should be valid", kind)
		}
		if kind.IsVaultState() && kind.MovesFunds() {
			t.Fatalf("%s cannot both change configuration and move funds", kind)
		}
		if kind.IsVaultState() && !kind.AdminOnly() {
			t.Fatalf("%s changes configuration and must be admin only", kind)
		}
	}
	if KindTransfer.AdminOnly() || KindTopUp.AdminOnly() {
		t.Fatal("policy-governed transfers are open to every member")
	}
	if KindPurge.IsVaultState() {
		t.Fatal("purge never queues behind configuration changes")
	}
	if !KindTopUpQuorum.UsesQuorum() || !KindTopUpQuorum.MovesFunds() {
		t.Fatal("quorum top-up moves funds under the admin quorum")
	}
	for _, kind := range []Kind{KindControllersUpdate, KindVersionUpgrade, KindTransfer, KindPurge} {
		if kind.Batchable() {
			t.Fatalf("%s must not join a batch", kind)
		}
	}
	for _, kind := range []Kind{KindPolicyCreate, KindMemberAccount, KindTokenAdd, KindTokenRemove} {
		if !kind.Batchable() {
			t.Fatalf("%s should be batchable", kind)
		}
	}
	if Kind("bogus").Valid() {
		t.Fatal("unknown kind should be invalid")
	}
}

func TestNewRecordsInitiatorApproval(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	tx := New(7, "alice", QuorumUpdate{Quorum: 2}, "batch-1", at)
	if tx.State != StateBlocked {
		t.Fatalf("state = %s, want %s", tx.State, StateBlocked)
	}
	if !tx.IsVaultState {
		t.Fatal("quorum update should be vault state")
	}
	vote, ok := tx.VoteOf("alice")
	if !ok || vote.Status != VoteApproved {
		t.Fatalf("initiator vote = %+v, %v", vote, ok)
	}
	if tx.Threshold != nil {
		t.Fatal("threshold must stay unresolved until promotion")
	}
}

func TestSetVoteReplacesSignerEntry(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	tx := New(1, "alice", Purge{}, "", at)
	tx.SetVote("bob", VoteRejected, at.Add(time.Minute))
	tx.SetVote("alice", VoteCanceled, at.Add(2*time.Minute))

	if len(tx.Approves) != 2 {
		t.Fatalf("approves = %d, want 2", len(tx.Approves))
	}
	if tx.Approves[0].Status != VoteCanceled {
		t.Fatalf("initiator vote = %s, want %s", tx.Approves[0].Status, VoteCanceled)
	}
	if !tx.ModifiedAt.Equal(at.Add(2 * time.Minute)) {
		t.Fatalf("modified at = %v", tx.ModifiedAt)
	}
	if !tx.CreatedAt.Equal(at) {
		t.Fatalf("created at changed to %v", tx.CreatedAt)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	threshold := uint8(2)
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	tx := New(1, "alice", PolicyCreate{UID: "p", Wallets: []string{"w-1"}, MemberThreshold: &threshold}, "", at)
	tx.Threshold = &threshold

	clone := tx.Clone()
	clone.Approves[0].Signer = "mallory"
	*clone.Threshold = 9
	clone.Payload.(PolicyCreate).Wallets[0] = "w-2"

	if tx.Approves[0].Signer != "alice" {
		t.Fatal("approves shared with clone")
	}
	if *tx.Threshold != 2 {
		t.Fatal("threshold shared with clone")
	}
	if tx.Payload.(PolicyCreate).Wallets[0] != "w-1" {
		t.Fatal("payload wallets shared with clone")
	}
}

func TestTransactionJSONKeepsPayloadKind(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	tx := New(3, "alice", MemberCreate{UserID: "bob", Name: "Bob", Role: state.RoleMember}, "", at)

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload, ok := decoded.Payload.(MemberCreate)
	if !ok {
		t.Fatalf("payload type = %T, want MemberCreate", decoded.Payload)
	}
	if payload.UserID != "bob" || payload.Role != state.RoleMember {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDecodePayloadRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload("member.teleport", []byte(`{}`))
	if !apperrors.IsCode(err, apperrors.CodeInvalidRequest) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeInvalidRequest)
	}
	if _, err := DecodePayload(KindQuorumUpdate, []byte(`{"quorum":"two"}`)); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestPayloadValidation(t *testing.T) {
	t.Parallel()

	zero := uint8(0)
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"member create", MemberCreate{UserID: "bob", Role: state.RoleAdmin}, false},
		{"member create bad role", MemberCreate{UserID: "bob", Role: "OWNER"}, true},
		{"quorum zero", QuorumUpdate{}, true},
		{"policy zero threshold", PolicyCreate{MemberThreshold: &zero}, true},
		{"upgrade semver", VersionUpgrade{Version: "v1.2.0"}, false},
		{"upgrade not semver", VersionUpgrade{Version: "1.2"}, true},
		{"transfer", Transfer{WalletUID: "w", To: "acc", Amount: 5}, false},
		{"transfer zero amount", Transfer{WalletUID: "w", To: "acc"}, true},
		{"top up without destination", TopUp{WalletUID: "w", Amount: 5}, false},
		{"controllers empty", ControllersUpdate{}, true},
		{"member account", MemberExtendAccount{UserID: "bob", Account: "acc"}, false},
		{"member account missing", MemberExtendAccount{UserID: "bob"}, true},
		{"token add", TokenAdd{Ledger: "ckbtc-ledger"}, false},
		{"token remove missing ledger", TokenRemove{}, true},
		{"quorum top up", TopUpQuorum{WalletUID: "w", Amount: 5}, false},
		{"quorum top up zero", TopUpQuorum{WalletUID: "w"}, true},
		{"purge", Purge{}, false},
	}
	for _, tc := range tests {
		err := tc.payload.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate() = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}
