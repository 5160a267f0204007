package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/thinktestai/thinktest/internal/generation/domain"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
)

const defaultMaxTokens = 4096

var _ domain.Provider = (*Provider)(nil)

// Provider calls the Messages API with the key carried by each request.
type Provider struct {
	client anthropic.Client
}

type Option func(*[]option.RequestOption)

func WithBaseURL(baseURL string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(baseURL))
	}
}

func WithMaxRetries(n int) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithMaxRetries(n))
	}
}

func New(opts ...Option) *Provider {
	var clientOpts []option.RequestOption
	for _, opt := range opts {
		opt(&clientOpts)
	}
	return &Provider{client: anthropic.NewClient(clientOpts...)}
}

func (p *Provider) Vendor() string { return providerkeydomain.VendorAnthropic }

func (p *Provider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultMaxTokens
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params, option.WithAPIKey(req.APIKey))
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, domain.ErrEmptyCompletion
	}

	return &domain.Completion{
		Text:         text.String(),
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
