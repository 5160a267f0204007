package gemini

import (
	"context"
	"net/http"
	"strings"

	"github.com/thinktestai/thinktest/internal/generation/domain"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
	"google.golang.org/genai"
)

var _ domain.Provider = (*Provider)(nil)

// Provider calls the Gemini API. genai binds the key to the client, so a
// client is built per call.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Provider {
	return &Provider{baseURL: strings.TrimSpace(baseURL), httpClient: httpClient}
}

func (p *Provider) Vendor() string { return providerkeydomain.VendorGoogle }

func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	cfg := &genai.ClientConfig{
		APIKey:     req.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, domain.ErrEmptyCompletion
	}

	completion := &domain.Completion{Text: text.String(), Model: req.Model}
	if resp.ModelVersion != "" {
		completion.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}
