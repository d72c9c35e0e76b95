package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/olyamironova/perp-engine/internal/logging"
	"github.com/olyamironova/perp-engine/internal/port"
)

func status(t *testing.T, s *GRPCServer) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCriticalAlertMarksNotServing(t *testing.T) {
	s := NewGRPCServer(logging.Discard())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s))

	s.Critical(context.Background(), port.Alert{Kind: "adl_shortfall", Symbol: "BTC-PERP", Message: "shortfall"})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s))

	s.Resume()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s))
}
