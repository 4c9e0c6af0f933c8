package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/deskbot/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}

func TestSetup_BuildsExporters(t *testing.T) {
	for _, proto := range []string{"grpc", "http"} {
		t.Run(proto, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TelemetryConfig{
				Enabled:  true,
				Endpoint: "127.0.0.1:4317",
				Protocol: proto,
				Insecure: true,
			})
			require.NoError(t, err)

			_, span := Tracer().Start(context.Background(), "test")
			span.End()

			// Nothing listens on the endpoint, so only bound the wait.
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_ = shutdown(ctx)
		})
	}
}

func TestProtocolOf(t *testing.T) {
	assert.Equal(t, "grpc", protocolOf(config.TelemetryConfig{}))
	assert.Equal(t, "grpc", protocolOf(config.TelemetryConfig{Protocol: "grpc"}))
	assert.Equal(t, "http", protocolOf(config.TelemetryConfig{Protocol: "http"}))
}
