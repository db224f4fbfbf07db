package httpapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes grpc.health.v1.Health, with serving status driven by
// the readiness probe.
type HealthServer struct {
	health    *health.Server
	readiness ReadinessChecker
	logger    *slog.Logger
	interval  time.Duration
}

func NewHealthServer(r ReadinessChecker, logger *slog.Logger) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{
		health:    health.NewServer(),
		readiness: r,
		logger:    logger,
		interval:  10 * time.Second,
	}
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs the probe once and publishes the result for the whole server
// and the named service.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		s.logger.WarnContext(ctx, "grpc readiness check failed", slog.Any("error", err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	return status
}

// Watch refreshes the status until ctx ends, then marks everything not serving.
func (s *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, s.interval/2)
		s.Refresh(probeCtx)
		cancel()
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
