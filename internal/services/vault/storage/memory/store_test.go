package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
)

func seed(t *testing.T, n int) *Store {
	t.Helper()
	store := New()
	at := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	txs := make([]transaction.Transaction, 0, n)
	for i := 1; i <= n; i++ {
		tx := transaction.New(uint64(i), "alice", transaction.Transfer{WalletUID: "w-1", To: "acc", Amount: uint64(i)}, "", at)
		if i%2 == 0 {
			tx.State = transaction.StatePending
		}
		txs = append(txs, tx)
	}
	if err := store.AppendTransactions(context.Background(), txs); err != nil {
		t.Fatalf("append: %v", err)
	}
	return store
}

func TestAppendRejectsDuplicatesAtomically(t *testing.T) {
	t.Parallel()

	store := seed(t, 2)
	at := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	batch := []transaction.Transaction{
		transaction.New(3, "alice", transaction.Purge{}, "", at),
		transaction.New(2, "alice", transaction.Purge{}, "", at),
	}
	if err := store.AppendTransactions(context.Background(), batch); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("err = %v, want %v", err, storage.ErrAlreadyExists)
	}
	if _, err := store.GetTransaction(context.Background(), 3); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("transaction 3 stored despite failed batch: %v", err)
	}
}

func TestStoredTransactionsAreCopies(t *testing.T) {
	t.Parallel()

	store := seed(t, 1)
	got, err := store.GetTransaction(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Approves[0].Signer = "mallory"
	again, _ := store.GetTransaction(context.Background(), 1)
	if again.Approves[0].Signer != "alice" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestSaveRequiresExistingRows(t *testing.T) {
	t.Parallel()

	store := seed(t, 1)
	tx := transaction.New(5, "alice", transaction.Purge{}, "", time.Now())
	if err := store.SaveTransactions(context.Background(), []transaction.Transaction{tx}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestQueryTransactionsPages(t *testing.T) {
	t.Parallel()

	store := seed(t, 7)
	ctx := context.Background()

	var seen []uint64
	token := ""
	for {
		page, err := store.QueryTransactions(ctx, storage.TransactionQuery{Filter: `state = "PENDING"`, PageSize: 2, PageToken: token})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		for _, tx := range page.Transactions {
			seen = append(seen, tx.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	want := []uint64{2, 4, 6}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestListTransactionsAfterID(t *testing.T) {
	t.Parallel()

	store := seed(t, 5)
	txs, err := store.ListTransactions(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != 4 || txs[1].ID != 5 {
		t.Fatalf("transactions = %+v", txs)
	}
	if _, err := store.ListTransactions(context.Background(), 0, 0); err == nil {
		t.Fatal("expected limit error")
	}
}
