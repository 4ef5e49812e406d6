// Package metadata reads and writes the request metadata vault gRPC calls carry.
package metadata

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader is the gRPC metadata key for request correlation IDs.
const RequestIDHeader = "x-vault-request-id"

// InvocationIDHeader is the gRPC metadata key for MCP tool invocation IDs.
const InvocationIDHeader = "x-vault-invocation-id"

// LocaleHeader selects the language of user-facing error messages.
const LocaleHeader = "x-vault-locale"

// AuthorizationHeader carries the caller's bearer token.
const AuthorizationHeader = "authorization"

type contextKey string

const (
	requestIDContextKey    contextKey = "vault-request-id"
	invocationIDContextKey contextKey = "vault-invocation-id"
)

// RequestIDFromContext returns the request ID stored in context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDContextKey).(string)
	return value
}

// InvocationIDFromContext returns the invocation ID stored in context.
func InvocationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(invocationIDContextKey).(string)
	return value
}

// LocaleFromContext returns the locale requested in incoming metadata.
func LocaleFromContext(ctx context.Context) string {
	return incomingValue(ctx, LocaleHeader)
}

// AuthorizationFromContext returns the raw authorization header.
func AuthorizationFromContext(ctx context.Context) string {
	return incomingValue(ctx, AuthorizationHeader)
}

// WithRequestID stores the request ID in context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// WithInvocationID stores the invocation ID in context.
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, invocationIDContextKey, invocationID)
}

// IsPrintableASCII reports whether a string contains only printable ASCII characters.
func IsPrintableASCII(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return false
		}
	}
	return true
}

// FirstMetadataValue returns the first printable ASCII metadata value for a key.
func FirstMetadataValue(md metadata.MD, key string) string {
	for mdKey, values := range md {
		if !strings.EqualFold(mdKey, key) {
			continue
		}
		for _, value := range values {
			if IsPrintableASCII(value) {
				return value
			}
		}
	}
	return ""
}

// UnaryServerInterceptor assigns every call a request ID, echoes it in the
// response headers, and tags the active span with the correlation IDs.
func UnaryServerInterceptor(idGenerator func() string) grpc.UnaryServerInterceptor {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := incomingValue(ctx, RequestIDHeader)
		if requestID == "" {
			requestID = idGenerator()
		}
		ctx = WithRequestID(ctx, requestID)
		attrs := []attribute.KeyValue{attribute.String("vault.request_id", requestID)}
		header := metadata.Pairs(RequestIDHeader, requestID)
		if invocationID := incomingValue(ctx, InvocationIDHeader); invocationID != "" {
			ctx = WithInvocationID(ctx, invocationID)
			attrs = append(attrs, attribute.String("vault.invocation_id", invocationID))
			header.Set(InvocationIDHeader, invocationID)
		}
		trace.SpanFromContext(ctx).SetAttributes(attrs...)

		if err := grpc.SetHeader(ctx, header); err != nil {
			return nil, status.Errorf(codes.Internal, "set response metadata: %v", err)
		}
		return handler(ctx, req)
	}
}

func incomingValue(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return FirstMetadataValue(md, key)
}
