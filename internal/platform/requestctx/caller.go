// Package requestctx carries the authenticated vault caller through a request.
package requestctx

import (
	"context"
	"strings"
)

type callerContextKey struct{}

// WithCaller returns ctx carrying the member id the request acts as.
func WithCaller(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerContextKey{}, strings.TrimSpace(userID))
}

// CallerFromContext returns the member id, or "" for anonymous requests.
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(callerContextKey{}).(string)
	return value
}
