// Package mcp exposes the vault gRPC API as MCP tools, acting as one
// configured vault member.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/sharedvault/internal/platform/grpc"
	"github.com/louisbranch/sharedvault/internal/platform/timeouts"
	vaultv1 "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/vault"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
)

const (
	serverName    = "Shared Vault MCP"
	serverVersion = "0.1.0"
	// tokenTTL bounds each minted bearer token; a fresh one is minted per call.
	tokenTTL = time.Minute
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	GRPCAddr  string
	Transport TransportKind
	// HTTPAddr defaults to localhost:8081 for the HTTP transport.
	HTTPAddr string
	// Caller is the vault member the tools act as.
	Caller      string
	TokenSecret []byte
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

// New dials the vault gRPC service and registers the vault tools.
func New(ctx context.Context, cfg Config) (*Server, error) {
	caller := strings.TrimSpace(cfg.Caller)
	if caller == "" {
		return nil, fmt.Errorf("MCP caller is required")
	}
	if len(cfg.TokenSecret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	creds := platformgrpc.BearerCredentials(func(context.Context) (string, error) {
		return vaultv1.IssueToken(cfg.TokenSecret, caller, tokenTTL, time.Now())
	})
	conn, err := platformgrpc.DialWithHealth(ctx, platformgrpc.DialTarget{
		Addr:          cfg.GRPCAddr,
		HealthService: vaultv1.ServiceName,
		Timeout:       timeouts.GRPCDial,
		Logf:          log.Printf,
	}, platformgrpc.DefaultClientDialOptions(grpc.WithPerRPCCredentials(creds))...)
	if err != nil {
		return nil, fmt.Errorf("connect to vault gRPC server at %s: %w", cfg.GRPCAddr, err)
	}
	server := NewWithClient(vaultv1.NewClient(conn))
	server.conn = conn
	return server, nil
}

// NewWithClient registers the vault tools against client without owning a
// connection.
func NewWithClient(client VaultClient) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerVaultTools(mcpServer, client)
	return &Server{mcpServer: mcpServer}
}

func registerVaultTools(server *mcp.Server, client VaultClient) {
	mcp.AddTool(server, RequestTransactionsTool(), RequestTransactionsHandler(client))
	mcp.AddTool(server, ApproveTransactionsTool(), ApproveTransactionsHandler(client))
	mcp.AddTool(server, ExecuteTool(), ExecuteHandler(client))
	mcp.AddTool(server, ListTransactionsTool(), ListTransactionsHandler(client))
	mcp.AddTool(server, GetStateTool(), GetStateHandler(client))
	mcp.AddTool(server, ListVersionsTool(), ListVersionsHandler(client))
}

// Run creates and serves the MCP server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.Transport != TransportStdio && cfg.Transport != TransportHTTP {
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}

	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.Transport == TransportHTTP {
		return server.serveHTTP(ctx, cfg.HTTPAddr)
	}
	return server.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if closeErr := s.Close(); closeErr != nil {
		if err == nil {
			return fmt.Errorf("close gRPC connection: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close gRPC connection: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// serveHTTP serves the streamable HTTP transport until ctx ends.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	defer s.Close()
	if addr == "" {
		addr = "localhost:8081"
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcpServer }, nil)
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("MCP HTTP listening at %s", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown MCP HTTP server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve MCP HTTP: %w", err)
	}
}
