package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/sharedvault/internal/platform/grpc"
	vaultservice "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/vault"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/transaction"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const testSecret = "test-secret"

func setVaultEnv(t *testing.T, dir string) {
	t.Helper()
	fixturePath := filepath.Join(dir, "fixture.yaml")
	fixture := []byte("balances:\n  w-main: 100\ncanister:\n  version: v1.0.0\n  controllers: [founder]\nversions: [v1.0.0, v1.1.0]\n")
	if err := os.WriteFile(fixturePath, fixture, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("VAULT_DB_PATH", filepath.Join(dir, "vault.db"))
	t.Setenv("VAULT_TOKEN_SECRET", testSecret)
	t.Setenv("VAULT_FOUNDER", "founder")
	t.Setenv("VAULT_FIXTURE_PATH", fixturePath)
}

// startServer serves until the returned stop function is called.
func startServer(t *testing.T) (*Server, func()) {
	t.Helper()

	srv, err := NewWithAddr(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	}
	t.Cleanup(stop)
	return srv, stop
}

func dialVault(t *testing.T, addr, caller string) *vaultservice.Client {
	t.Helper()
	creds := platformgrpc.BearerCredentials(func(context.Context) (string, error) {
		return vaultservice.IssueToken([]byte(testSecret), caller, time.Minute, time.Now())
	})
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(creds),
	)
	if err != nil {
		t.Fatalf("dial vault server: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})
	return vaultservice.NewClient(conn)
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestServer_TransferAndRestart(t *testing.T) {
	setVaultEnv(t, t.TempDir())

	srv, stop := startServer(t)
	client := dialVault(t, srv.Addr(), "founder")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.RequestTransactions(ctx, &vaultservice.RequestTransactionsRequest{Requests: []vaultservice.TransactionRequest{
		{Kind: transaction.KindWalletCreate, Payload: rawPayload(t, transaction.WalletCreate{UID: "w-main", Name: "Main"})},
		{Kind: transaction.KindTransfer, Payload: rawPayload(t, transaction.Transfer{WalletUID: "w-main", To: "acc-bob", Amount: 40})},
	}}); err != nil {
		t.Fatalf("request transactions: %v", err)
	}
	if _, err := client.Execute(ctx, &vaultservice.ExecuteRequest{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := srv.ledger.Balance("acc-bob"); got != 40 {
		t.Fatalf("acc-bob balance = %d, want 40", got)
	}
	if got := srv.ledger.Balance("w-main"); got != 60 {
		t.Fatalf("w-main balance = %d, want 60", got)
	}

	versions, err := client.ListVersions(ctx, &vaultservice.ListVersionsRequest{})
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions.Versions) != 2 {
		t.Fatalf("versions = %v, want two", versions.Versions)
	}

	stop()

	restarted, _ := startServer(t)
	again := dialVault(t, restarted.Addr(), "founder")
	page, err := again.ListTransactions(ctx, &vaultservice.ListTransactionsRequest{})
	if err != nil {
		t.Fatalf("list after restart: %v", err)
	}
	if len(page.Transactions) != 4 {
		t.Fatalf("transactions after restart = %d, want 4", len(page.Transactions))
	}
	if got := page.Transactions[3].State; got != transaction.StateExecuted {
		t.Fatalf("transfer state after restart = %s, want %s", got, transaction.StateExecuted)
	}
	st, err := again.GetState(ctx, &vaultservice.GetStateRequest{})
	if err != nil {
		t.Fatalf("get state after restart: %v", err)
	}
	if len(st.State.Wallets) != 1 {
		t.Fatalf("wallets after restart = %+v", st.State.Wallets)
	}
}

func TestServer_EmptyDBPathKeepsLogInMemory(t *testing.T) {
	dir := t.TempDir()
	setVaultEnv(t, dir)
	t.Setenv("VAULT_DB_PATH", "")

	srv, stop := startServer(t)
	if _, ok := srv.store.(*memory.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", srv.store)
	}
	client := dialVault(t, srv.Addr(), "founder")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.RequestTransactions(ctx, &vaultservice.RequestTransactionsRequest{Requests: []vaultservice.TransactionRequest{
		{Kind: transaction.KindVaultNaming, Payload: rawPayload(t, transaction.VaultNaming{Name: "Scratch"})},
	}}); err != nil {
		t.Fatalf("request transactions: %v", err)
	}
	page, err := client.ListTransactions(ctx, &vaultservice.ListTransactionsRequest{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(page.Transactions) != 3 {
		t.Fatalf("transactions = %d, want 3", len(page.Transactions))
	}
	stop()

	if _, err := os.Stat(filepath.Join(dir, "vault.db")); !os.IsNotExist(err) {
		t.Fatalf("stat vault.db err = %v, want not exist", err)
	}
	restarted, _ := startServer(t)
	again := dialVault(t, restarted.Addr(), "founder")
	page, err = again.ListTransactions(ctx, &vaultservice.ListTransactionsRequest{})
	if err != nil {
		t.Fatalf("list after restart: %v", err)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("transactions after restart = %d, want only genesis", len(page.Transactions))
	}
}

func TestLoadServerEnvRequiresSecret(t *testing.T) {
	t.Setenv("VAULT_TOKEN_SECRET", "")
	if _, err := loadServerEnv(); err == nil {
		t.Fatal("expected error without token secret")
	}
}

func TestLoadFixtureDefaults(t *testing.T) {
	fixture, err := loadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if fixture.Canister.Version != defaultCanisterVersion {
		t.Fatalf("version = %q, want %q", fixture.Canister.Version, defaultCanisterVersion)
	}
	if len(fixture.Versions) != 1 || fixture.Versions[0] != defaultCanisterVersion {
		t.Fatalf("versions = %v", fixture.Versions)
	}
}

func TestLoadFixtureRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte("balances: [not, a, map"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := loadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}
