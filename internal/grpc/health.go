package grpc

import (
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-gateway/internal/observability"
)

// ServiceName is the health service name reported for the gateway.
const ServiceName = "chat.Gateway"

// HealthServer exposes grpc.health.v1.Health for orchestrator probes.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewHealthServer(log *zap.Logger) *HealthServer {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	s := &HealthServer{server: server, health: hs, log: log}
	s.SetServing(false)
	return s
}

// SetServing flips the overall and gateway status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop marks every service not serving and drains in-flight calls.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
