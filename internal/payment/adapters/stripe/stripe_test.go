package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/thinktestai/thinktest/internal/config"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	"go.uber.org/zap"
)

func TestFactoryRequiresWebhookSecret(t *testing.T) {
	factory := NewFactory()
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{}}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := factory.NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"webhook_secret": "  "}}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for blank secret, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	adapter := newTestAdapter(t, secret)

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, timestamp-3600))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to be rejected, got %v", err)
	}
}

func TestParsePaymentEvent(t *testing.T) {
	created := time.Now().UTC().Unix()

	tests := []struct {
		name       string
		stripeType string
		object     map[string]any
		wantType   string
		amount     int64
		reason     string
	}{{
		name:       "succeeded",
		stripeType: "payment_intent.succeeded",
		object: map[string]any{
			"id":              "pi_1",
			"object":          "payment_intent",
			"amount":          1500,
			"amount_received": 1500,
			"currency":        "usd",
			"created":         created,
			"metadata":        map[string]any{"package_id": "pro"},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
		amount:   1500,
	}, {
		name:       "failed",
		stripeType: "payment_intent.payment_failed",
		object: map[string]any{
			"id":       "pi_2",
			"object":   "payment_intent",
			"amount":   500,
			"currency": "usd",
			"created":  created,
			"last_payment_error": map[string]any{
				"code":    "card_declined",
				"message": "Your card was declined.",
			},
		},
		wantType: paymentdomain.EventTypePaymentFailed,
		amount:   500,
		reason:   "Your card was declined.",
	}, {
		name:       "canceled",
		stripeType: "payment_intent.canceled",
		object: map[string]any{
			"id":                  "pi_3",
			"object":              "payment_intent",
			"amount":              6000,
			"currency":            "usd",
			"created":             created,
			"cancellation_reason": "abandoned",
		},
		wantType: paymentdomain.EventTypePaymentCanceled,
		amount:   6000,
		reason:   "abandoned",
	}}

	adapter := newTestAdapter(t, "whsec_test")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := buildEvent(t, "evt_"+tt.name, tt.stripeType, created, tt.object)

			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if event.Amount != tt.amount {
				t.Fatalf("expected amount %d, got %d", tt.amount, event.Amount)
			}
			if event.ExternalReference != tt.object["id"] {
				t.Fatalf("expected reference %v, got %s", tt.object["id"], event.ExternalReference)
			}
			if event.FailureReason != tt.reason {
				t.Fatalf("expected failure reason %q, got %q", tt.reason, event.FailureReason)
			}
			if event.Provider != "stripe" || event.ProviderEventID != "evt_"+tt.name {
				t.Fatalf("unexpected provider identity %s/%s", event.Provider, event.ProviderEventID)
			}
		})
	}
}

func TestParseIgnoresOtherEvents(t *testing.T) {
	adapter := newTestAdapter(t, "whsec_test")
	payload := buildEvent(t, "evt_charge", "charge.succeeded", time.Now().Unix(), map[string]any{"id": "ch_1", "object": "charge"})

	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := newTestAdapter(t, "whsec_test")
	if _, err := adapter.Parse(context.Background(), []byte("not-json")); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestGatewayWithoutKeyIsUnavailable(t *testing.T) {
	gateway := NewGateway(config.Config{}, zap.NewNop())
	if _, err := gateway.CreateIntent(context.Background(), paymentdomain.CreateIntentRequest{Amount: 500, Currency: "usd"}); !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if err := gateway.Refund(context.Background(), paymentdomain.RefundRequest{ExternalReference: "pi_1"}); !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
}

func newTestAdapter(t *testing.T, secret string) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Provider: "stripe",
		Config:   map[string]any{"webhook_secret": secret},
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func buildEvent(t *testing.T, id string, eventType string, created int64, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": created,
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
