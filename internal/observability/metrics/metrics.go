package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the dispatch and
// activity-log core.
type Metrics struct {
	dispatchRuns       metric.Int64Counter
	dispatchDuplicates metric.Int64Counter
	dispatchAwaited    metric.Int64Counter
	dispatchInFlight   metric.Int64UpDownCounter
	activityAppends    metric.Int64Counter
	ledgerReaped       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "atrium"
	}
	meter := provider.Meter(name)

	dispatchRuns, err := meter.Int64Counter("atrium_dispatch_runs_total")
	if err != nil {
		return nil, err
	}
	dispatchDuplicates, err := meter.Int64Counter("atrium_dispatch_duplicates_total")
	if err != nil {
		return nil, err
	}
	dispatchAwaited, err := meter.Int64Counter("atrium_dispatch_awaited_total")
	if err != nil {
		return nil, err
	}
	dispatchInFlight, err := meter.Int64UpDownCounter("atrium_dispatch_in_flight")
	if err != nil {
		return nil, err
	}
	activityAppends, err := meter.Int64Counter("atrium_activity_appends_total")
	if err != nil {
		return nil, err
	}
	ledgerReaped, err := meter.Int64Counter("atrium_ledger_reaped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		dispatchRuns:       dispatchRuns,
		dispatchDuplicates: dispatchDuplicates,
		dispatchAwaited:    dispatchAwaited,
		dispatchInFlight:   dispatchInFlight,
		activityAppends:    activityAppends,
		ledgerReaped:       ledgerReaped,
	}, nil
}

// RecordDispatchRun counts handler executions by action and outcome.
func (m *Metrics) RecordDispatchRun(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.dispatchRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDispatchDuplicate counts dispatch calls short-circuited by a terminal
// ledger record.
func (m *Metrics) RecordDispatchDuplicate(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.dispatchDuplicates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDispatchAwaited counts dispatch calls that waited on an in-flight
// invocation of the same key.
func (m *Metrics) RecordDispatchAwaited(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.dispatchAwaited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// DispatchStarted/DispatchFinished track in-flight handler executions.
func (m *Metrics) DispatchStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatchInFlight.Add(ctx, 1)
}

func (m *Metrics) DispatchFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatchInFlight.Add(ctx, -1)
}

// RecordActivityAppend counts appended activity events.
func (m *Metrics) RecordActivityAppend(ctx context.Context, entityType, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("category", strings.TrimSpace(category)),
	)
	m.activityAppends.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerReaped counts stale ledger records timed out by the sweeper.
func (m *Metrics) RecordLedgerReaped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.ledgerReaped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"action":      {},
	"outcome":     {},
	"entity_type": {},
	"category":    {},
	"reason":      {},
	"status_code": {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
