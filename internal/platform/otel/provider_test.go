package otel_test

import (
	"context"
	"testing"

	"github.com/louisbranch/sharedvault/internal/platform/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		enabled  string
		ratio    string
		wantErr  bool
	}{
		{name: "no endpoint is a no-op", endpoint: ""},
		{name: "explicitly disabled", endpoint: "http://localhost:4318", enabled: "false"},
		// A non-routable address keeps the exporter from sending anything.
		{name: "endpoint set", endpoint: "http://192.0.2.1:4318"},
		{name: "sample ratio out of range", endpoint: "http://192.0.2.1:4318", ratio: "2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VAULT_OTEL_ENDPOINT", tt.endpoint)
			t.Setenv("VAULT_OTEL_ENABLED", tt.enabled)
			if tt.ratio != "" {
				t.Setenv("VAULT_OTEL_SAMPLE_RATIO", tt.ratio)
			}

			shutdown, err := otel.Setup(context.Background(), "test-service")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown error: %v", err)
			}
		})
	}
}

func TestSetupNoopShutdownIgnoresCancelledContext(t *testing.T) {
	t.Setenv("VAULT_OTEL_ENDPOINT", "")

	shutdown, err := otel.Setup(context.Background(), "noop-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}
