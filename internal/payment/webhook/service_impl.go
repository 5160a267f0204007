package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	"github.com/thinktestai/thinktest/internal/payment/adapters"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies and applies one raw gateway delivery. Unverified
// payloads never reach the ledger.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.ReconcileResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
			s.log.Error("payment webhook received for unconfigured provider",
				zap.String("provider", provider), zap.Error(err))
		}
		return nil, paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.String("provider", provider), zap.Error(err))
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "unknown", "invalid_signature")
		return nil, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("payment webhook event ignored", zap.String("provider", provider))
			return &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeIgnored}, nil
		}
		s.log.Warn("payment webhook payload rejected", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.paymentSvc.ProcessEvent(ctx, event)
}
