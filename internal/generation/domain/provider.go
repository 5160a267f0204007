package domain

import "context"

// CompletionRequest is one vendor call. APIKey is either the user's own key
// or the platform key.
type CompletionRequest struct {
	APIKey      string
	Model       string
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider calls one AI vendor.
type Provider interface {
	Vendor() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

type Service interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Models(ctx context.Context) []ModelSpec
}
