// Package grpc exposes the standard gRPC health service for the chat
// backend. Serving status follows a periodic database ping.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-realtime/internal/logging"
	"chat-realtime/internal/observability"
)

// ServiceName is the health entry reported alongside the overall status.
const ServiceName = "chat.Realtime"

const defaultProbeInterval = 15 * time.Second

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 on addr.
type HealthServer struct {
	addr     string
	db       Pinger
	interval time.Duration
	health   *health.Server
}

func NewHealthServer(addr string, db Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &HealthServer{
		addr:     addr,
		db:       db,
		interval: interval,
		health:   health.NewServer(),
	}
}

func (s *HealthServer) String() string { return "grpc-health(" + s.addr + ")" }

// Probe pings the database once and updates the serving status.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpclib.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Serve listens until ctx is cancelled, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}

	srv := grpclib.NewServer(
		grpclib.StatsHandler(otelgrpc.NewServerHandler()),
		grpclib.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	s.Register(srv)
	s.Probe(ctx)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("grpc health server listening")
		errCh <- srv.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("grpc server failed: %w", err)
			}
			return nil
		case <-ticker.C:
			s.Probe(ctx)
		case <-ctx.Done():
			s.health.Shutdown()
			srv.GracefulStop()
			<-errCh
			return ctx.Err()
		}
	}
}
