package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/moshesimon/OpenWork-sub000/internal/llm"

var (
	turnDurationHistogram metric.Float64Histogram
	turnToolsHistogram    metric.Int64Histogram
	metricsOnce           sync.Once
	metricsRegistered     bool
)

func initTurnMetrics() {
	meter := otel.Meter(meterName)
	var err error
	turnDurationHistogram, err = meter.Float64Histogram(
		"openwork.turn.duration",
		metric.WithDescription("Wall-clock duration per agent turn"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	turnToolsHistogram, err = meter.Int64Histogram(
		"openwork.turn.tool_calls",
		metric.WithDescription("Tool calls executed per agent turn"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// RecordTurnMetrics records duration and tool-call count after a turn.
// Provider and status attributes allow filtering in observability backends.
func RecordTurnMetrics(ctx context.Context, duration time.Duration, toolCalls int, provider, status string) {
	metricsOnce.Do(initTurnMetrics)
	if !metricsRegistered {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	turnDurationHistogram.Record(ctx, float64(duration.Milliseconds()), attrs)
	turnToolsHistogram.Record(ctx, int64(toolCalls), attrs)
}
