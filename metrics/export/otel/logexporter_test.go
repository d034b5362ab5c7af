package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	goGate "github.com/MrEthical07/goGate"
)

func TestLogExporterWritesOnShutdown(t *testing.T) {
	var logs bytes.Buffer
	reader := sdkmetric.NewPeriodicReader(NewLogExporter(zerolog.New(&logs)))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{goGate.MetricLoginFailure: 4},
		},
	}
	exp, err := NewExporterFromSource(provider.Meter("gogate-test"), src)
	require.NoError(t, err)

	// Shutdown runs a final collection through the exporter.
	require.NoError(t, provider.Shutdown(context.Background()))
	_ = exp.Close()

	out := logs.String()
	assert.Contains(t, out, `"metric":"gogate.login.events"`)
	assert.Contains(t, out, `"outcome=failure":4`)
	assert.Contains(t, out, `"outcome=success":0`)
}

func TestLogExporterHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLogExporter(zerolog.Nop()).Export(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
