package vault

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("vault", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8090 {
		t.Fatalf("expected default port 8090, got %d", cfg.Port)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("VAULT_PORT", "9000")

	fs := flag.NewFlagSet("vault", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9100"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected flag to win, got %d", cfg.Port)
	}
}

func TestParseConfigRejectsInvalidEnv(t *testing.T) {
	t.Setenv("VAULT_PORT", "not-a-port")

	fs := flag.NewFlagSet("vault", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
