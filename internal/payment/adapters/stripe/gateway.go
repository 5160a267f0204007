package stripe

import (
	"context"
	"fmt"
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/thinktestai/thinktest/internal/config"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	"go.uber.org/zap"
)

// Gateway creates payment intents and refunds through the Stripe API.
type Gateway struct {
	api *client.API
	log *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	g := &Gateway{log: log.Named("payment.stripe")}
	if key := strings.TrimSpace(cfg.Stripe.SecretKey); key != "" {
		g.api = client.New(key, nil)
	} else {
		g.log.Warn("stripe secret key not configured; purchases are disabled")
	}
	return g
}

func (g *Gateway) Provider() string {
	return providerName
}

func (g *Gateway) CreateIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.GatewayIntent, error) {
	if g.api == nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(req.Amount),
		Currency: stripego.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("failed to create stripe payment intent", zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}

	return &paymentdomain.GatewayIntent{
		ExternalReference: intent.ID,
		ClientSecret:      intent.ClientSecret,
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) error {
	if g.api == nil {
		return paymentdomain.ErrGatewayUnavailable
	}

	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(req.ExternalReference),
		Reason:        stripego.String(string(stripego.RefundReasonRequestedByCustomer)),
	}
	if req.Amount > 0 {
		params.Amount = stripego.Int64(req.Amount)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	if _, err := g.api.Refunds.New(params); err != nil {
		g.log.Error("failed to refund stripe payment intent",
			zap.String("external_reference", req.ExternalReference),
			zap.Error(err),
		)
		return fmt.Errorf("stripe: failed to refund payment intent: %w", err)
	}
	return nil
}
