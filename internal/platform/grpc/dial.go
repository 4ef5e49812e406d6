// Package grpc holds client-side helpers shared by processes that call the
// vault gRPC API.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer creates a client connection. gogrpc.NewClient is the default.
type Dialer func(target string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	DialStageConnect DialStage = "connect"
	DialStageHealth  DialStage = "health"
)

// DialError wraps dial and health check failures with the stage that failed.
type DialError struct {
	Stage DialStage
	Err   error
}

func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
}

func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DialTarget describes a peer and how long to wait for it to become healthy.
type DialTarget struct {
	Addr string
	// HealthService must report SERVING; empty checks the server as a whole.
	HealthService string
	Timeout       time.Duration
	Dialer        Dialer
	Logf          func(string, ...any)
}

// DefaultClientDialOptions returns the options local clients use, followed
// by extra. The OTel stats handler propagates trace context on every call.
func DefaultClientDialOptions(extra ...gogrpc.DialOption) []gogrpc.DialOption {
	opts := []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return append(opts, extra...)
}

// DialWithHealth connects to target and waits until its health check
// serves. The connection is closed when the wait fails.
func DialWithHealth(ctx context.Context, target DialTarget, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dial := target.Dialer
	if dial == nil {
		dial = gogrpc.NewClient
	}

	conn, err := dial(target.Addr, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}

	waitCtx := ctx
	if target.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, target.Timeout)
		defer cancel()
	}
	if err := WaitForHealth(waitCtx, conn, target.HealthService, target.Logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}

// TokenSource returns the bearer token for one outgoing call.
type TokenSource func(ctx context.Context) (string, error)

// bearerCredentials attaches a bearer token to every call. Local deployments
// run without TLS, so transport security is not required.
type bearerCredentials struct {
	source TokenSource
}

// BearerCredentials sends the token from source in the authorization header.
func BearerCredentials(source TokenSource) credentials.PerRPCCredentials {
	return bearerCredentials{source: source}
}

func (c bearerCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if c.source == nil {
		return nil, fmt.Errorf("token source is not configured")
	}
	token, err := c.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve bearer token: %w", err)
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (bearerCredentials) RequireTransportSecurity() bool {
	return false
}
