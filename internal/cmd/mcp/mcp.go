// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/louisbranch/sharedvault/internal/platform/cmd"
	vaultmcp "github.com/louisbranch/sharedvault/internal/services/vault/api/mcp"
)

// Config holds MCP command configuration.
type Config struct {
	Addr        string `env:"VAULT_GRPC_ADDR"     envDefault:"localhost:8090"`
	HTTPAddr    string `env:"VAULT_MCP_HTTP_ADDR" envDefault:"localhost:8081"`
	Transport   string `env:"VAULT_MCP_TRANSPORT" envDefault:"stdio"`
	Caller      string `env:"VAULT_MCP_CALLER"`
	TokenSecret string `env:"VAULT_TOKEN_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "vault server address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.Caller, "caller", cfg.Caller, "vault member the tools act as")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.Caller) == "" {
		return Config{}, fmt.Errorf("caller is required")
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return vaultmcp.Run(ctx, vaultmcp.Config{
			GRPCAddr:    cfg.Addr,
			Transport:   vaultmcp.TransportKind(cfg.Transport),
			HTTPAddr:    cfg.HTTPAddr,
			Caller:      cfg.Caller,
			TokenSecret: []byte(cfg.TokenSecret),
		})
	})
}
