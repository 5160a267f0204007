package metrics

import (
	"context"
	"errors"
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

// Metrics exposes application-level instruments.
type Metrics struct {
	creditTransactions  metric.Int64Counter
	creditsDeducted     metric.Float64Counter
	insufficientCredits metric.Int64Counter
	ledgerConflicts     metric.Int64Counter
	paymentEvents       metric.Int64Counter
	generations         metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New creates the domain instruments on the service's meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "thinktest"
	}
	meter := provider.Meter(name)

	var errs []error
	count := func(instrument, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(instrument, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	creditsDeducted, err := meter.Float64Counter("thinktest_credits_deducted_total",
		metric.WithDescription("Credits charged for metered generations."))
	errs = append(errs, err)

	m := &Metrics{
		creditTransactions:  count("thinktest_credit_transactions_total", "Ledger transactions appended, by type."),
		creditsDeducted:     creditsDeducted,
		insufficientCredits: count("thinktest_insufficient_credits_total", "Generations refused for lack of credits."),
		ledgerConflicts:     count("thinktest_ledger_conflicts_total", "Balance version conflicts that forced a retry."),
		paymentEvents:       count("thinktest_payment_events_total", "Payment gateway deliveries, by type and outcome."),
		generations:         count("thinktest_generations_total", "Test generation requests, by provider and outcome."),
		rateLimitAllowed:    count("thinktest_rate_limit_allowed_total", "Generation requests admitted by the limiter."),
		rateLimitDenied:     count("thinktest_rate_limit_denied_total", "Generation requests refused by the limiter."),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return m, nil
}

func inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func (m *Metrics) RecordCreditTransaction(ctx context.Context, txnType string) {
	if m != nil {
		inc(ctx, m.creditTransactions, label("type", txnType))
	}
}

func (m *Metrics) RecordCreditsDeducted(ctx context.Context, provider string, credits float64) {
	if m != nil {
		m.creditsDeducted.Add(ctx, credits, metric.WithAttributes(FilterAttributes(label("provider", provider))...))
	}
}

// RecordInsufficientCredits counts both refused sufficiency checks and
// deductions that lost a race for the last credits.
func (m *Metrics) RecordInsufficientCredits(ctx context.Context, provider string) {
	if m != nil {
		inc(ctx, m.insufficientCredits, label("provider", provider))
	}
}

func (m *Metrics) RecordLedgerConflict(ctx context.Context, operation string) {
	if m != nil {
		inc(ctx, m.ledgerConflicts, label("operation", operation))
	}
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m != nil {
		inc(ctx, m.paymentEvents, label("provider", provider), label("event_type", eventType), label("outcome", outcome))
	}
}

func (m *Metrics) RecordGeneration(ctx context.Context, provider, outcome string) {
	if m != nil {
		inc(ctx, m.generations, label("provider", provider), label("outcome", outcome))
	}
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m != nil {
		inc(ctx, m.rateLimitAllowed, label("endpoint", endpoint))
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		inc(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
	}
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

// User identifiers are never labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"type":        {},
	"operation":   {},
	"reason":      {},
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
