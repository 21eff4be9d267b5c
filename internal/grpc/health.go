package grpc

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/fjod/storefront/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// HealthServer serves the standard gRPC health protocol. The overall status
// ("") is SERVING only while every registered check passes; each check is
// also exposed under its own service name.
type HealthServer struct {
	srv      *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthServer(checks map[string]Check, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger = observability.OrNop(logger)

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &HealthServer{
		srv:      srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
	s.probe(context.Background())
	return s
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// Run re-probes the checks until ctx is cancelled.
func (s *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// GracefulStop flips every service to NOT_SERVING and drains the server.
func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *HealthServer) probe(ctx context.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		status := healthpb.HealthCheckResponse_SERVING
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](checkCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observability.WithTrace(ctx, logger).Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return resp, err
	}
}
