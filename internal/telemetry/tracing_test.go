package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/logging"
)

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "perp-engine", "", logging.Discard())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
