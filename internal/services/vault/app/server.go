// Package server wires the vault runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/sharedvault/internal/platform/config"
	"github.com/louisbranch/sharedvault/internal/platform/timeouts"
	"github.com/louisbranch/sharedvault/internal/services/vault/adapters/canister"
	"github.com/louisbranch/sharedvault/internal/services/vault/adapters/ledger"
	grpcmeta "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/metadata"
	vaultservice "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/vault"
	"github.com/louisbranch/sharedvault/internal/services/vault/domain/engine"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage"
	"github.com/louisbranch/sharedvault/internal/services/vault/storage/memory"
	vaultsqlite "github.com/louisbranch/sharedvault/internal/services/vault/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type serverEnv struct {
	DBPath       string `env:"DB_PATH"`
	TokenSecret  string `env:"TOKEN_SECRET"`
	Founder      string `env:"FOUNDER"`
	FounderName  string `env:"FOUNDER_NAME"`
	CanisterID   string `env:"CANISTER_ID" envDefault:"vault-canister"`
	TopUpAccount string `env:"TOP_UP_ACCOUNT" envDefault:"cycles-minter"`
	WasmDir      string `env:"WASM_DIR"`
	FixturePath  string `env:"FIXTURE_PATH"`
}

func loadServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := config.ParseEnvPrefixed(&cfg, config.EnvPrefix); err != nil {
		return serverEnv{}, err
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return serverEnv{}, fmt.Errorf("%sTOKEN_SECRET is required", config.EnvPrefix)
	}
	return cfg, nil
}

// vaultStore is a transaction log the server owns and closes.
type vaultStore interface {
	storage.TransactionStore
	Close() error
}

// Server hosts the vault gRPC API and storage lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      vaultStore
	engine     *engine.Engine
	ledger     *ledger.Ledger
	canisters  *canister.Manager
}

// New creates a configured vault server listening on the provided port.
func New(ctx context.Context, port int) (*Server, error) {
	return NewWithAddr(ctx, fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured vault server for the provided address.
func NewWithAddr(ctx context.Context, addr string) (*Server, error) {
	env, err := loadServerEnv()
	if err != nil {
		return nil, err
	}
	fixture, err := loadFixture(env.FixturePath)
	if err != nil {
		return nil, err
	}
	wasm, err := openWasmRepository(env.WasmDir, fixture.Versions)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	store, err := openVaultStore(ctx, env.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	funds := ledger.New(fixture.Balances)
	canisters := canister.NewManager()
	canisters.Install(env.CanisterID, fixture.Canister.Version, fixture.Canister.Controllers)

	vaultEngine, err := engine.New(ctx, engine.Config{
		Store:        store,
		Ledger:       funds,
		Canisters:    canisters,
		Wasm:         wasm,
		Founder:      env.Founder,
		FounderName:  env.FounderName,
		CanisterID:   env.CanisterID,
		TopUpAccount: env.TopUpAccount,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("start vault engine: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcmeta.UnaryServerInterceptor(nil),
			vaultservice.AuthInterceptor([]byte(env.TokenSecret), time.Now),
		),
	)
	healthServer := health.NewServer()
	vaultservice.RegisterVaultServiceServer(grpcServer, vaultservice.NewService(vaultEngine))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(vaultservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		engine:     vaultEngine,
		ledger:     funds,
		canisters:  canisters,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a vault server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(ctx, port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation. Shutdown drains
// in-flight calls for up to timeouts.Shutdown before stopping hard.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	defer s.Close()

	log.Printf("vault server listening at %v", s.listener.Addr())
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.grpcServer.Serve(s.listener)
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			log.Printf("vault server drain timed out; stopping")
			s.grpcServer.Stop()
		}
		return nil
	})
	return group.Wait()
}

// Close releases vault server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close vault store: %v", err)
		}
	}
}

// openVaultStore opens the SQLite log at path, or an in-memory log when
// path is empty.
func openVaultStore(ctx context.Context, path string) (vaultStore, error) {
	if strings.TrimSpace(path) == "" {
		log.Printf("vault: %sDB_PATH is empty; transactions are kept in memory", config.EnvPrefix)
		return memory.New(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := vaultsqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open vault sqlite store: %w", err)
	}
	return store, nil
}

// openWasmRepository loads modules from dir, or registers placeholder
// modules for versions when dir is empty.
func openWasmRepository(dir string, versions []string) (*canister.Repository, error) {
	if strings.TrimSpace(dir) != "" {
		repo, err := canister.LoadRepository(os.DirFS(dir))
		if err != nil {
			return nil, fmt.Errorf("load wasm modules from %s: %w", dir, err)
		}
		return repo, nil
	}
	repo := canister.NewRepository()
	for _, version := range versions {
		if err := repo.Add(version, []byte("placeholder module "+version)); err != nil {
			return nil, fmt.Errorf("register wasm %s: %w", version, err)
		}
	}
	return repo, nil
}
