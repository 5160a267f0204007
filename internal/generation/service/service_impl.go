package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	"github.com/thinktestai/thinktest/internal/generation/domain"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 90 * time.Second
	defaultMaxTokens = 8192

	outcomeSuccess      = "success"
	outcomeOwnKey       = "own_key"
	outcomeInsufficient = "insufficient_credits"
	outcomeProviderErr  = "provider_error"
	outcomeDeductErr    = "deduct_error"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Credits    creditdomain.Service
	Keys       providerkeydomain.Service `optional:"true"`
	Providers  []domain.Provider         `group:"generation_providers"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	credits      creditdomain.Service
	keys         providerkeydomain.Service
	providers    map[string]domain.Provider
	platformKeys map[string]string
	timeout      time.Duration
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	providers := make(map[string]domain.Provider, len(p.Providers))
	for _, provider := range p.Providers {
		if provider == nil {
			continue
		}
		providers[provider.Vendor()] = provider
	}

	timeout := p.Cfg.Generation.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		log:       p.Log.Named("generation.service"),
		credits:   p.Credits,
		keys:      p.Keys,
		providers: providers,
		platformKeys: map[string]string{
			providerkeydomain.VendorOpenAI:    p.Cfg.OpenAIAPIKey,
			providerkeydomain.VendorAnthropic: p.Cfg.AnthropicAPIKey,
			providerkeydomain.VendorGoogle:    p.Cfg.GeminiAPIKey,
		},
		timeout:    timeout,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Models(ctx context.Context) []domain.ModelSpec {
	out := make([]domain.ModelSpec, 0)
	for _, spec := range domain.Models() {
		if _, ok := s.providers[spec.Vendor]; ok {
			out = append(out, spec)
		}
	}
	return out
}

// Generate runs one test generation. Calls paid with the user's own key are
// never metered; otherwise credits are checked before the vendor call and
// deducted only after it succeeds.
func (s *Service) Generate(ctx context.Context, req domain.Request) (*domain.Result, error) {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.UserID == 0 || req.Provider == "" || strings.TrimSpace(req.Code) == "" {
		return nil, domain.ErrInvalidRequest
	}

	spec, ok := domain.LookupModel(req.Provider)
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	provider, ok := s.providers[spec.Vendor]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	model := spec.Model
	if override := strings.TrimSpace(req.Model); override != "" {
		model = override
	}

	log := s.log.With(
		zap.String("user_id", req.UserID.String()),
		zap.String("provider", req.Provider),
		zap.String("model", model),
	)

	userKey, hasKey, err := s.userKey(ctx, req, spec.Vendor)
	if err != nil {
		return nil, err
	}

	completionReq := domain.CompletionRequest{
		Model:       model,
		System:      systemPrompt(req.Framework),
		Prompt:      userPrompt(generationInput{PluginName: req.PluginName, Code: req.Code}),
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2,
	}

	if hasKey {
		completionReq.APIKey = userKey
		completion, err := s.complete(ctx, provider, completionReq)
		if err != nil {
			log.Warn("generation with private key failed", zap.Error(err))
			s.record(ctx, req.Provider, outcomeProviderErr)
			return nil, err
		}
		s.record(ctx, req.Provider, outcomeOwnKey)
		return resultFrom(req.Provider, model, completion), nil
	}

	// Credits are priced per provider id, so metered calls run its own model.
	if model != spec.Model {
		log.Info("generation rejected: model override on metered call")
		return nil, fmt.Errorf("%w: model %q is only available with your own %s key", domain.ErrInvalidRequest, model, spec.Vendor)
	}

	platformKey := strings.TrimSpace(s.platformKeys[spec.Vendor])
	if platformKey == "" {
		return nil, domain.ErrProviderNotConfigured
	}

	sufficient, err := s.credits.HasSufficientCredits(ctx, req.UserID, req.Provider)
	if err != nil {
		return nil, err
	}
	if !sufficient {
		log.Info("generation rejected: insufficient credits")
		s.record(ctx, req.Provider, outcomeInsufficient)
		return nil, creditdomain.ErrInsufficientCredits
	}

	completionReq.APIKey = platformKey
	completion, err := s.complete(ctx, provider, completionReq)
	if err != nil {
		log.Warn("generation failed, no credits deducted", zap.Error(err))
		s.record(ctx, req.Provider, outcomeProviderErr)
		return nil, err
	}

	txn, err := s.credits.Deduct(ctx, creditdomain.DeductRequest{
		UserID:       req.UserID,
		Provider:     req.Provider,
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Extra:        usageExtra(req),
	})
	if err != nil {
		// The balance changed between the check and the deduction; the output
		// is withheld so unpaid work is never returned.
		if errors.Is(err, creditdomain.ErrInsufficientCredits) {
			log.Info("generation output withheld: credits spent concurrently")
			s.record(ctx, req.Provider, outcomeInsufficient)
		} else {
			log.Error("deduct after generation failed", zap.Error(err))
			s.record(ctx, req.Provider, outcomeDeductErr)
		}
		return nil, err
	}

	result := resultFrom(req.Provider, model, completion)
	result.Metered = true
	result.CreditsCharged = txn.Amount.Neg()
	balanceAfter := txn.BalanceAfter
	result.BalanceAfter = &balanceAfter
	result.TransactionID = txn.ID

	s.record(ctx, req.Provider, outcomeSuccess)
	log.Info("generation completed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("credits", result.CreditsCharged.String()),
	)
	return result, nil
}

func (s *Service) userKey(ctx context.Context, req domain.Request, vendor string) (string, bool, error) {
	if s.keys == nil {
		return "", false, nil
	}
	key, ok, err := s.keys.Key(ctx, req.UserID, vendor)
	if err != nil {
		return "", false, fmt.Errorf("load provider key: %w", err)
	}
	return key, ok && key != "", nil
}

func (s *Service) complete(ctx context.Context, provider domain.Provider, req domain.CompletionRequest) (*domain.Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	completion, err := provider.Complete(callCtx, req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCompletion) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailed, err)
	}
	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		return nil, domain.ErrEmptyCompletion
	}
	if completion.Model == "" {
		completion.Model = req.Model
	}
	return completion, nil
}

func (s *Service) record(ctx context.Context, provider, outcome string) {
	s.obsMetrics.RecordGeneration(ctx, provider, outcome)
}

func resultFrom(provider, model string, completion *domain.Completion) *domain.Result {
	if completion.Model != "" {
		model = completion.Model
	}
	return &domain.Result{
		Provider:     provider,
		Model:        model,
		Tests:        extractCode(completion.Text),
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
	}
}

// usageExtra is stored on the usage transaction. The slug groups reports by
// plugin regardless of how the name was typed.
func usageExtra(req domain.Request) map[string]any {
	extra := map[string]any{
		"framework":   req.Framework,
		"plugin_name": req.PluginName,
	}
	if name := strings.TrimSpace(req.PluginName); name != "" {
		extra["plugin_slug"] = slug.Make(name)
	}
	return extra
}
