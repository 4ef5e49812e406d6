package ledger

import (
	"context"
	"testing"

	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
)

func TestTransferMovesFunds(t *testing.T) {
	t.Parallel()

	l := New(map[string]uint64{"w-1": 100})
	index, err := l.Transfer(context.Background(), engine.TransferRequest{From: "w-1", To: "acc", Amount: 40, Memo: "rent"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if index != 1 {
		t.Fatalf("index = %d, want 1", index)
	}
	if got := l.Balance("w-1"); got != 60 {
		t.Fatalf("w-1 balance = %d, want 60", got)
	}
	if got := l.Balance("acc"); got != 40 {
		t.Fatalf("acc balance = %d, want 40", got)
	}
	blocks := l.Blocks()
	if len(blocks) != 1 || blocks[0].Memo != "rent" {
		t.Fatalf("blocks = %+v", blocks)
	}
}

func TestTransferRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  engine.TransferRequest
	}{
		{name: "insufficient funds", req: engine.TransferRequest{From: "w-1", To: "acc", Amount: 11}},
		{name: "zero amount", req: engine.TransferRequest{From: "w-1", To: "acc"}},
		{name: "missing destination", req: engine.TransferRequest{From: "w-1", Amount: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New(map[string]uint64{"w-1": 10})
			_, err := l.Transfer(context.Background(), tc.req)
			if !engine.IsRejection(err) {
				t.Fatalf("err = %v, want rejection", err)
			}
			if got := l.Balance("w-1"); got != 10 {
				t.Fatalf("balance = %d, want 10", got)
			}
			if len(l.Blocks()) != 0 {
				t.Fatal("rejected transfer must not record a block")
			}
		})
	}
}

func TestTransferCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Transfer(ctx, engine.TransferRequest{From: "a", To: "b", Amount: 1})
	if err == nil || engine.IsRejection(err) {
		t.Fatalf("err = %v, want context error", err)
	}
}

func TestNewCopiesBalances(t *testing.T) {
	t.Parallel()

	seed := map[string]uint64{"w-1": 5}
	l := New(seed)
	seed["w-1"] = 500
	l.Deposit("w-1", 1)
	if got := l.Balance("w-1"); got != 6 {
		t.Fatalf("balance = %d, want 6", got)
	}
}
