package api

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"
	"time"

	"loyaltybot/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyMetadataKey    = "x-api-key"
	requestIDMetadataKey = "x-request-id"
)

func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chained
			chained = func(currentCtx context.Context, currentReq any) (any, error) {
				return current(currentCtx, currentReq, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// AuthInterceptor applies the HTTP API key and per-client rate limit to gRPC calls.
type AuthInterceptor struct {
	apiKey  string
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg config.HTTPConfig) *AuthInterceptor {
	return &AuthInterceptor{apiKey: cfg.APIKey, limiter: newRateLimiter(cfg.RPS, cfg.Burst)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.check(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.check(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *AuthInterceptor) check(ctx context.Context) error {
	if err := a.checkAuth(ctx); err != nil {
		return err
	}
	if !a.limiter.allow(a.clientKey(ctx)) {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

// checkAuth mirrors HTTPAuth: x-api-key or a bearer token, and an empty configured key disables it.
func (a *AuthInterceptor) checkAuth(ctx context.Context) error {
	if a.apiKey == "" {
		return nil
	}
	key := metadataKey(ctx)
	if key == "" {
		return status.Error(codes.Unauthenticated, errMissingAPIKey.Error())
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
		return status.Error(codes.Unauthenticated, errInvalidAPIKey.Error())
	}
	return nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	if key := metadataKey(ctx); key != "" {
		return "key:" + key
	}
	return peerAddr(ctx)
}

func metadataKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if key := first(md.Get(apiKeyMetadataKey)); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(first(md.Get("authorization")), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return clientKeyUnknown
	}
	if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil && host != "" {
		return host
	}
	return p.Addr.String()
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)

		base.Debug().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", peerAddr(ctx)).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")

		return resp, err
	}
}

func LoggingStreamInterceptor(logger *zerolog.Logger) grpc.StreamServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		requestID := requestIDFromMetadata(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		err := handler(srv, ss)

		base.Debug().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", peerAddr(ss.Context())).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc stream")

		return err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if id := first(md.Get(requestIDMetadataKey)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
