// Package health serves the standard gRPC health protocol for
// orchestration probes.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "governor"

// DefaultInterval is how often Run re-checks dependencies.
const DefaultInterval = 10 * time.Second

// Checker reports whether a dependency is usable.
type Checker interface {
	Ping(ctx context.Context) error
}

// Config holds gRPC server configuration.
type Config struct {
	Port     int
	Interval time.Duration
}

// Server publishes SERVING while every checker passes.
type Server struct {
	cfg        Config
	checkers   []Checker
	health     *health.Server
	grpcServer *grpc.Server
	logger     *slog.Logger
}

// New creates a health server. Status starts as NOT_SERVING until the
// first check passes.
func New(cfg Config, logger *slog.Logger, checkers ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Server{
		cfg:        cfg,
		checkers:   checkers,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
		logger:     logger,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	return s
}

// Check runs every checker once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checkers {
		if err := c.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.setStatus(status)
	return status
}

// Run checks immediately, then every Interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service NOT_SERVING and drains connections.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
