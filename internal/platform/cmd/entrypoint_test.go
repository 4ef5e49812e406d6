package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	Address string `env:"VAULT_CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8090"`
	Caller  string `env:"VAULT_CMD_TEST_CALLER" envDefault:"founder"`
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("VAULT_CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("VAULT_CMD_TEST_CALLER", "alice")

	var cfg testConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
	fs.StringVar(&cfg.Caller, "caller", cfg.Caller, "caller")

	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Address != "flag:9001" {
		t.Fatalf("expected flag value for address, got %q", cfg.Address)
	}
	if cfg.Caller != "alice" {
		t.Fatalf("expected env caller, got %q", cfg.Caller)
	}
}

func TestParseRejectsNilTargets(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected parse config to reject nil target")
	}
}

func TestRunWithTelemetry(t *testing.T) {
	t.Setenv("VAULT_OTEL_ENDPOINT", "")

	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceVault, nil); err == nil {
		t.Fatal("expected missing run function error")
	}

	boom := errors.New("boom")
	ran := false
	err := RunWithTelemetry(context.Background(), ServiceMCP, func(context.Context) error {
		ran = true
		return boom
	})
	if !ran {
		t.Fatal("expected run to be called")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
