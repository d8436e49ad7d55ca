package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"loyaltybot/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the grpc.health.v1 service name for the bot as a whole.
// Every readiness check is also published as HealthService + "." + check name.
const HealthService = "loyaltybot"

// GRPCServer serves the standard health protocol from the readiness checks.
type GRPCServer struct {
	cfg    config.GRPCConfig
	checks []Check
	health *health.Server
	server *grpc.Server
	logger *zerolog.Logger
}

// NewGRPCServer wires the health service. Auth and rate limits reuse the HTTP API settings.
func NewGRPCServer(cfg config.GRPCConfig, auth config.HTTPConfig, checks []Check, logger *zerolog.Logger) *GRPCServer {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	l := logger.With().Str("component", "grpc").Logger()

	interceptor := NewAuthInterceptor(auth)
	server := grpc.NewServer(
		grpc.UnaryInterceptor(ChainUnaryInterceptors(LoggingUnaryInterceptor(&l), interceptor.Unary())),
		grpc.ChainStreamInterceptor(LoggingStreamInterceptor(&l), interceptor.Stream()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	if cfg.Reflection {
		reflection.Register(server)
	}

	// not serving until the first refresh
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCServer{cfg: cfg, checks: checks, health: hs, server: server, logger: &l}
}

// Start listens on the configured port and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve refreshes health once, keeps refreshing it every interval while ctx lives, and serves lis.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go s.watchChecks(ctx)

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Refresh runs the checks and publishes their serving status. It returns the overall status.
// Optional checks going down leave the bot itself SERVING, like /readyz reporting degraded.
func (s *GRPCServer) Refresh(ctx context.Context) string {
	overall, results := runChecks(ctx, s.checks, s.logger)
	for name, result := range results {
		s.health.SetServingStatus(HealthService+"."+name, servingStatus(result == statusOK))
	}

	serving := servingStatus(overall != statusUnavailable)
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(HealthService, serving)
	return overall
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *GRPCServer) watchChecks(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING and stops gracefully, forcing the stop when ctx ends first.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
