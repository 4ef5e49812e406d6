// Package vault parses vault service flags and launches the service.
package vault

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/sharedvault/internal/platform/cmd"
	server "github.com/louisbranch/sharedvault/internal/services/vault/app"
)

// Config holds vault command configuration.
type Config struct {
	Port int `env:"VAULT_PORT" envDefault:"8090"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The vault gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the vault gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVault, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
