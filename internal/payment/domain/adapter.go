package domain

import (
	"context"
	"net/http"
)

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter verifies and parses inbound gateway webhooks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// Gateway is the outbound side of the payment processor.
type Gateway interface {
	Provider() string
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*GatewayIntent, error)
	Refund(ctx context.Context, req RefundRequest) error
}

type CreateIntentRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

type GatewayIntent struct {
	ExternalReference string
	ClientSecret      string
}

type RefundRequest struct {
	ExternalReference string
	Amount            int64
	Reason            string
	// IdempotencyKey makes a repeated refund of the same intent a no-op at the gateway.
	IdempotencyKey    string
}
