package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "anthropic-claude4-opus"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordCreditTransaction(ctx, "usage")
	m.RecordCreditsDeducted(ctx, "openai-gpt5", 1)
	m.RecordInsufficientCredits(ctx, "openai-gpt5")
	m.RecordLedgerConflict(ctx, "deduct")
	m.RecordPaymentEvent(ctx, "stripe", "payment.succeeded", "applied")
	m.RecordGeneration(ctx, "openai-gpt5", "metered")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "thinktest"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCreditTransaction(context.Background(), "purchase")
	m.RecordRateLimitDenied(context.Background(), "/api/generations", "user-rate")
}

func TestRecordedCountersDropUserLabels(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "thinktest"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordGeneration(ctx, "openai-gpt5", "metered")
	m.RecordGeneration(ctx, "openai-gpt5", "metered")
	m.RecordCreditsDeducted(ctx, "openai-gpt5", 1.5)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, inst := range scope.Metrics {
			switch data := inst.Data.(type) {
			case metricdata.Sum[int64]:
				if inst.Name == "thinktest_generations_total" {
					found[inst.Name] = true
					if len(data.DataPoints) != 1 || data.DataPoints[0].Value != 2 {
						t.Fatalf("unexpected generation points: %+v", data.DataPoints)
					}
				}
			case metricdata.Sum[float64]:
				if inst.Name == "thinktest_credits_deducted_total" {
					found[inst.Name] = true
					if data.DataPoints[0].Value != 1.5 {
						t.Fatalf("unexpected credits deducted: %v", data.DataPoints[0].Value)
					}
				}
			}
		}
	}
	if !found["thinktest_generations_total"] || !found["thinktest_credits_deducted_total"] {
		t.Fatalf("instruments not collected: %v", found)
	}
}
