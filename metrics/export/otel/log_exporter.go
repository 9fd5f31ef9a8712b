package otel

import (
	"context"
	"log/slog"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// LogExporter is an sdkmetric.Exporter writing each collection as one
// structured log record. It suits deployments without a metrics backend.
type LogExporter struct {
	logger *slog.Logger
	level  slog.Level
}

var _ sdkmetric.Exporter = (*LogExporter)(nil)

// NewLogExporter logs collections at info level.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger, level: slog.LevelInfo}
}

// NewMeterProvider returns a provider that pushes to exp every interval
// through a periodic reader.
func NewMeterProvider(exp sdkmetric.Exporter, interval time.Duration) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
}

func (e *LogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *LogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

// Export logs every single-point metric by name. Metrics with several
// points are skipped.
func (e *LogExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if rm == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if attr, ok := metricAttr(m); ok {
				attrs = append(attrs, attr)
			}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	e.logger.LogAttrs(ctx, e.level, "metrics", attrs...)
	return nil
}

func metricAttr(m metricdata.Metrics) (slog.Attr, bool) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		if len(data.DataPoints) == 1 {
			return slog.Int64(m.Name, data.DataPoints[0].Value), true
		}
	case metricdata.Gauge[int64]:
		if len(data.DataPoints) == 1 {
			return slog.Int64(m.Name, data.DataPoints[0].Value), true
		}
	case metricdata.Gauge[float64]:
		if len(data.DataPoints) == 1 {
			return slog.Float64(m.Name, data.DataPoints[0].Value), true
		}
	}
	return slog.Attr{}, false
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error { return nil }
