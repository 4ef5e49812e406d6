package projection

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/state"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
)

type fakeLister struct {
	txs   []transaction.Transaction
	calls int
	err   error
}

func (f *fakeLister) ListTransactions(_ context.Context, afterID uint64, limit int) ([]transaction.Transaction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []transaction.Transaction
	for _, tx := range f.txs {
		if tx.ID > afterID && len(out) < limit {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

var base = time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)

func executed(id uint64, payload transaction.Payload) transaction.Transaction {
	tx := transaction.New(id, "founder", payload, "", base.Add(time.Duration(id)*time.Minute))
	tx.State = transaction.StateExecuted
	return tx
}

func sampleLog() []transaction.Transaction {
	rejected := executed(4, transaction.QuorumUpdate{Quorum: 2})
	rejected.State = transaction.StateRejected
	transfer := executed(6, transaction.Transfer{WalletUID: "w-1", To: "acc", Amount: 3})
	return []transaction.Transaction{
		executed(1, transaction.MemberCreate{UserID: "founder", Name: "Founder", Role: state.RoleAdmin}),
		executed(2, transaction.WalletCreate{UID: "w-1", Name: "Main"}),
		executed(3, transaction.MemberCreate{UserID: "bob", Name: "Bob", Role: state.RoleAdmin}),
		rejected,
		executed(5, transaction.QuorumUpdate{Quorum: 2}),
		transfer,
		executed(7, transaction.WalletUpdateName{UID: "w-1", Name: "Treasury"}),
	}
}

func TestProjectFoldsExecutedVaultState(t *testing.T) {
	t.Parallel()

	st, err := Project(context.Background(), &fakeLister{txs: sampleLog()}, nil)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(st.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(st.Members))
	}
	if st.Quorum.Value != 2 {
		t.Fatalf("quorum = %d, want 2", st.Quorum.Value)
	}
	if !st.Quorum.ModifiedAt.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("quorum modified at = %v", st.Quorum.ModifiedAt)
	}
	wallet, ok := st.Wallet("w-1")
	if !ok || wallet.Name != "Treasury" {
		t.Fatalf("wallet = %+v, %v", wallet, ok)
	}
}

func TestProjectHonoursCursor(t *testing.T) {
	t.Parallel()

	cursor := uint64(3)
	st, err := Project(context.Background(), &fakeLister{txs: sampleLog()}, &cursor)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if st.Quorum.Value != state.DefaultQuorum {
		t.Fatalf("quorum = %d, want %d", st.Quorum.Value, state.DefaultQuorum)
	}
	wallet, _ := st.Wallet("w-1")
	if wallet.Name != "Main" {
		t.Fatalf("wallet name = %q, want %q", wallet.Name, "Main")
	}
}

func TestProjectWithoutCursorEqualsLastExecutedCursor(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{txs: sampleLog()}
	full, err := Project(context.Background(), lister, nil)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	last := uint64(7)
	atLast, err := Project(context.Background(), lister, &last)
	if err != nil {
		t.Fatalf("project at cursor: %v", err)
	}
	if !reflect.DeepEqual(full, atLast) {
		t.Fatalf("project(nil) = %+v, project(7) = %+v", full, atLast)
	}
	again, err := Project(context.Background(), lister, nil)
	if err != nil {
		t.Fatalf("project again: %v", err)
	}
	if !reflect.DeepEqual(full, again) {
		t.Fatal("replaying the same log twice produced different states")
	}
	folded, err := Fold(sampleLog(), nil)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if !reflect.DeepEqual(full, folded) {
		t.Fatal("Fold and Project disagree")
	}
}

func TestProjectPagesThroughLongLogs(t *testing.T) {
	t.Parallel()

	txs := []transaction.Transaction{
		executed(1, transaction.MemberCreate{UserID: "founder", Name: "Founder", Role: state.RoleAdmin}),
	}
	for id := uint64(2); id <= 450; id++ {
		txs = append(txs, executed(id, transaction.VaultNaming{Name: "vault", Description: "rev"}))
	}
	lister := &fakeLister{txs: txs}
	if _, err := Project(context.Background(), lister, nil); err != nil {
		t.Fatalf("project: %v", err)
	}
	if lister.calls != 4 {
		t.Fatalf("list calls = %d, want 4", lister.calls)
	}
}

func TestProjectPropagatesListError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	if _, err := Project(context.Background(), &fakeLister{err: boom}, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestApplyLeavesStateOnError(t *testing.T) {
	t.Parallel()

	st := state.New()
	if err := Apply(&st, executed(1, transaction.MemberCreate{UserID: "a", Role: state.RoleAdmin})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	err := Apply(&st, executed(2, transaction.MemberRemove{UserID: "a"}))
	if !apperrors.IsCode(err, apperrors.CodeLessThanOneAdmin) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeLessThanOneAdmin)
	}
	if len(st.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(st.Members))
	}
	err = Apply(&st, executed(3, transaction.PolicyCreate{UID: "p", Wallets: []string{"nope"}}))
	if !apperrors.IsCode(err, apperrors.CodeWalletNotExists) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeWalletNotExists)
	}
	if len(st.Policies) != 0 {
		t.Fatalf("policies = %d, want 0", len(st.Policies))
	}
}
