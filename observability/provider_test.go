package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/field-workshops/labkit/config"
)

var testService = Service{Name: "labctl", Version: "test"}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(config.MetricsConfig{}, testService, nil)
	require.NoError(t, err)

	_, ok := p.MeterProvider().(metricnoop.MeterProvider)
	assert.True(t, ok)
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, Shutdown(p, 0))
}

func TestNewProviderStdout(t *testing.T) {
	var out bytes.Buffer
	p, err := NewProvider(config.MetricsConfig{
		Enabled:  true,
		Endpoint: EndpointStdout,
		Interval: time.Hour,
	}, testService, &out)
	require.NoError(t, err)

	counter, err := p.MeterProvider().Meter("labkit/test").Int64Counter("labkit.test.attempts")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, Shutdown(p, time.Second))
	assert.Contains(t, out.String(), "labkit.test.attempts")
	assert.Contains(t, out.String(), "labctl")
}

func TestNewProviderOTLP(t *testing.T) {
	for _, protocol := range []string{ProtocolHTTP, ProtocolGRPC} {
		t.Run(protocol, func(t *testing.T) {
			p, err := NewProvider(config.MetricsConfig{
				Enabled:  true,
				Endpoint: "localhost:4318",
				Protocol: protocol,
				Insecure: true,
				Headers:  map[string]string{"api-key": "secret"},
			}, testService, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = Shutdown(p, 100*time.Millisecond) })
			assert.NotNil(t, p.MeterProvider())
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(config.MetricsConfig{Enabled: true, Endpoint: "localhost:4318", Protocol: "udp"}, testService, nil)
	assert.True(t, errors.Is(err, ErrInvalidProtocol))

	_, err = NewProvider(config.MetricsConfig{Enabled: true}, testService, nil)
	assert.True(t, errors.Is(err, ErrMissingEndpoint))
}

func TestShutdownNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(nil, time.Second))
}
