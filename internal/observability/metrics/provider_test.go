package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	provider, err := NewProvider(nil, ProviderConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, provider)
}

func TestNewExporter_RejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("carrier-pigeon", "localhost:4317")
	assert.Error(t, err)
}
