package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Request asks for unit tests for a plugin's code.
type Request struct {
	UserID     snowflake.ID
	Provider   string
	Model      string
	Framework  string
	PluginName string
	Code       string
}

type Result struct {
	Provider       string           `json:"provider"`
	Model          string           `json:"model"`
	Tests          string           `json:"tests"`
	InputTokens    int64            `json:"input_tokens"`
	OutputTokens   int64            `json:"output_tokens"`
	// Metered is false when the user's own key paid for the call.
	Metered        bool             `json:"metered"`
	CreditsCharged decimal.Decimal  `json:"credits_charged"`
	BalanceAfter   *decimal.Decimal `json:"balance_after,omitempty"`
	TransactionID  snowflake.ID     `json:"transaction_id,omitempty"`
}

// ModelSpec binds a cost-table provider id to a vendor model.
type ModelSpec struct {
	Provider string `json:"provider"`
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
}

var models = map[string]ModelSpec{
	"openai-gpt5":              {Provider: "openai-gpt5", Vendor: "openai", Model: "gpt-5"},
	"openai-gpt4o":             {Provider: "openai-gpt4o", Vendor: "openai", Model: "gpt-4o"},
	"openai-gpt5-mini":         {Provider: "openai-gpt5-mini", Vendor: "openai", Model: "gpt-5-mini"},
	"anthropic-claude4-sonnet": {Provider: "anthropic-claude4-sonnet", Vendor: "anthropic", Model: "claude-sonnet-4-20250514"},
	"anthropic-claude4-opus":   {Provider: "anthropic-claude4-opus", Vendor: "anthropic", Model: "claude-opus-4-20250514"},
	"anthropic-claude35-haiku": {Provider: "anthropic-claude35-haiku", Vendor: "anthropic", Model: "claude-3-5-haiku-latest"},
	"google-gemini25-pro":      {Provider: "google-gemini25-pro", Vendor: "google", Model: "gemini-2.5-pro"},
	"google-gemini25-flash":    {Provider: "google-gemini25-flash", Vendor: "google", Model: "gemini-2.5-flash"},
}

func LookupModel(provider string) (ModelSpec, bool) {
	spec, ok := models[provider]
	return spec, ok
}

// Models lists the supported provider ids with their vendor models.
func Models() []ModelSpec {
	out := make([]ModelSpec, 0, len(models))
	for _, spec := range models {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
