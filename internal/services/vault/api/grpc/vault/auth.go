package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/sharedvault/internal/platform/errors"
	"github.com/louisbranch/sharedvault/internal/platform/requestctx"
	grpcmeta "github.com/louisbranch/sharedvault/internal/services/vault/api/grpc/metadata"
	"google.golang.org/grpc"
)

const (
	bearerPrefix = "Bearer "
	tokenIssuer  = "sharedvault"
)

// IssueToken signs an HS256 token naming subject as the caller.
func IssueToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token secret is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a signed token and returns its subject.
func ParseToken(secret []byte, token string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", err
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// AuthInterceptor resolves the caller from the bearer token of every vault
// call. Calls to other services, such as health checks, pass through.
func AuthInterceptor(secret []byte, clock func() time.Time) grpc.UnaryServerInterceptor {
	if clock == nil {
		clock = time.Now
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		header := grpcmeta.AuthorizationFromContext(ctx)
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			return nil, handle(ctx, apperrors.New(apperrors.CodeUnauthorised, "bearer token is required"))
		}
		subject, err := ParseToken(secret, strings.TrimSpace(token), clock())
		if err != nil {
			return nil, handle(ctx, apperrors.Wrap(apperrors.CodeUnauthorised, "bearer token is invalid", err))
		}
		return handler(requestctx.WithCaller(ctx, subject), req)
	}
}
