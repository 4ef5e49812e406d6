package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const vaultHealthService = "vault.v1.VaultService"

type healthFixture struct {
	conn   *gogrpc.ClientConn
	health *health.Server
}

func newHealthFixture(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) healthFixture {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(vaultHealthService, status)
	go func() { _ = server.Serve(listener) }()

	conn, err := gogrpc.NewClient("passthrough:///bufnet",
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return healthFixture{conn: conn, health: healthServer}
}

func TestWaitForHealth(t *testing.T) {
	t.Parallel()

	t.Run("serving", func(t *testing.T) {
		t.Parallel()
		f := newHealthFixture(t, grpc_health_v1.HealthCheckResponse_SERVING)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := WaitForHealth(ctx, f.conn, vaultHealthService, t.Logf); err != nil {
			t.Fatalf("wait for health: %v", err)
		}
	})

	t.Run("becomes serving", func(t *testing.T) {
		t.Parallel()
		f := newHealthFixture(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		time.AfterFunc(250*time.Millisecond, func() {
			f.health.SetServingStatus(vaultHealthService, grpc_health_v1.HealthCheckResponse_SERVING)
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := WaitForHealth(ctx, f.conn, vaultHealthService, nil); err != nil {
			t.Fatalf("wait for health after transition: %v", err)
		}
	})

	t.Run("unknown service times out", func(t *testing.T) {
		t.Parallel()
		f := newHealthFixture(t, grpc_health_v1.HealthCheckResponse_SERVING)
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		if err := WaitForHealth(ctx, f.conn, "ledger.v1.LedgerService", nil); err == nil {
			t.Fatal("expected context error, got nil")
		}
	})

	t.Run("nil connection", func(t *testing.T) {
		t.Parallel()
		if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
			t.Fatal("expected error for nil connection")
		}
	})
}

func TestNextHealthBackoff(t *testing.T) {
	t.Parallel()

	wait := minHealthBackoff
	for range 5 {
		wait = nextHealthBackoff(wait)
	}
	if wait != maxHealthBackoff {
		t.Fatalf("backoff = %s, want %s", wait, maxHealthBackoff)
	}
}
