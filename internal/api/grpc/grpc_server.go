package grpc

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/olyamironova/perp-engine/internal/port"
)

// ServiceName is the health-check service clients probe.
const ServiceName = "perp.engine"

// GRPCServer exposes the standard health protocol. A critical alert flips the
// engine service to NOT_SERVING so orchestrators stop routing to it.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	log    logrus.FieldLogger
}

var _ port.Alerter = (*GRPCServer)(nil)

func NewGRPCServer(log logrus.FieldLogger, opts ...grpc.ServerOption) *GRPCServer {
	s := &GRPCServer{
		srv:    grpc.NewServer(opts...),
		health: health.NewServer(),
		log:    log.WithField("component", "grpc"),
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *GRPCServer) Health() healthpb.HealthServer { return s.health }

// Critical logs the alert and marks the engine unhealthy until Resume.
func (s *GRPCServer) Critical(ctx context.Context, a port.Alert) {
	s.log.WithFields(logrus.Fields{"kind": a.Kind, "symbol": a.Symbol}).WithFields(a.Fields).Error(a.Message)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

func (s *GRPCServer) Resume() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
