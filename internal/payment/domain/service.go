package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/config"
)

// Service reconciles gateway events with payment intents and the credit ledger.
type Service interface {
	ProcessEvent(ctx context.Context, event *PaymentEvent) (*ReconcileResult, error)
	HandlePaymentSucceeded(ctx context.Context, externalRef string) (*ReconcileResult, error)
	HandlePaymentFailed(ctx context.Context, externalRef string, reason string) (*ReconcileResult, error)
	HandlePaymentCanceled(ctx context.Context, externalRef string) (*ReconcileResult, error)

	Packages() []config.PackageConfig
	StartPurchase(ctx context.Context, userID snowflake.ID, packageID string) (*PurchaseResult, error)
	RefundPurchase(ctx context.Context, intentID snowflake.ID, reason string) (*RefundResult, error)
	ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]PaymentIntent, error)
	// GetPurchase returns ErrIntentNotFound unless the intent belongs to userID.
	GetPurchase(ctx context.Context, userID, intentID snowflake.ID) (*PaymentIntent, error)
}

// WebhookService is the entry point for raw gateway deliveries.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*ReconcileResult, error)
}
