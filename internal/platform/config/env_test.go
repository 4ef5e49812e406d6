package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"VAULT_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	Addr string `env:"ADDR" envDefault:"localhost:8090"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("VAULT_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvPrefixed(t *testing.T) {
	t.Setenv("VAULT_PREFIXED_ADDR", "127.0.0.1:9999")

	var cfg prefixedTestConfig
	if err := ParseEnvPrefixed(&cfg, EnvPrefix+"PREFIXED_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, "127.0.0.1:9999")
	}
}
