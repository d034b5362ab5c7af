package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// LogExporter is a push exporter that writes each collected metric as one
// structured log line. It lets a deployment without a collector still see
// the OpenTelemetry view of the engine.
type LogExporter struct {
	logger zerolog.Logger
}

var _ sdkmetric.Exporter = (*LogExporter)(nil)

func NewLogExporter(logger zerolog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (e *LogExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e *LogExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			points := zerolog.Dict()
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				addPoints(points, data.DataPoints)
			case metricdata.Gauge[int64]:
				addPoints(points, data.DataPoints)
			default:
				continue
			}
			e.logger.Info().Str("metric", m.Name).Dict("points", points).Msg("otel metric")
		}
	}
	return nil
}

func addPoints(dict *zerolog.Event, points []metricdata.DataPoint[int64]) {
	for _, dp := range points {
		key := dp.Attributes.Encoded(attribute.DefaultEncoder())
		if key == "" {
			key = "value"
		}
		dict.Int64(key, dp.Value)
	}
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error { return nil }
