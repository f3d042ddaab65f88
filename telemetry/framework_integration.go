package telemetry

import (
	"context"

	"github.com/edgecore/edge-go/core"
)

// CoreMetricsBridge implements core.MetricsRegistry, letting core-level
// components (core.MemoryStore, and anything else in core) emit metrics
// through this package without core importing telemetry back (a cycle).
type CoreMetricsBridge struct {
	logger *TelemetryLogger
}

// NewCoreMetricsBridge creates a bridge backed by logger for debug tracing
// of bridged emissions.
func NewCoreMetricsBridge(logger *TelemetryLogger) *CoreMetricsBridge {
	return &CoreMetricsBridge{
		logger: logger,
	}
}

// Counter implements core.MetricsRegistry
func (b *CoreMetricsBridge) Counter(name string, labels ...string) {
	if b.logger != nil && b.logger.debug {
		b.logger.Debug("bridged metric emission", map[string]interface{}{
			"metric_name": name,
			"type":        "counter",
			"label_count": len(labels) / 2,
			"source":      "core",
		})
	}

	Emit(name, 1.0, labels...)
}

// EmitWithContext implements core.MetricsRegistry
func (b *CoreMetricsBridge) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	baggage := GetBaggage(ctx)

	if b.logger != nil && b.logger.debug {
		requestID := ""
		if baggage != nil {
			if id, ok := baggage["request_id"]; ok {
				requestID = id
			}
		}

		b.logger.Debug("bridged context-aware emission", map[string]interface{}{
			"metric_name": name,
			"value":       value,
			"has_baggage": len(baggage) > 0,
			"request_id":  requestID,
			"label_count": len(labels) / 2,
			"source":      "core",
		})
	}

	EmitWithContext(ctx, name, value, labels...)
}

// GetBaggage implements core.MetricsRegistry. It returns the W3C baggage
// plus trace_id and span_id of the active span, if any; never nil.
func (b *CoreMetricsBridge) GetBaggage(ctx context.Context) map[string]string {
	result := make(map[string]string)
	for k, v := range GetBaggage(ctx) {
		result[k] = v
	}
	if tc := GetTraceContext(ctx); tc.TraceID != "" {
		result["trace_id"] = tc.TraceID
		result["span_id"] = tc.SpanID
	}
	return result
}

// EnableCoreMetricsBridge registers this package with core, so core-level
// components (core.MemoryStore's cache hit/miss/eviction counters) emit
// through telemetry. Called automatically from Initialize().
func EnableCoreMetricsBridge(logger *TelemetryLogger) {
	bridge := NewCoreMetricsBridge(logger)

	core.SetMetricsRegistry(bridge)

	if logger != nil {
		logger.Info("core metrics bridge enabled", map[string]interface{}{
			"integration": "core.MetricsRegistry",
			"impact":      "core-level components can now emit metrics",
			"methods":     []string{"Counter", "EmitWithContext", "GetBaggage"},
		})
	}
}
