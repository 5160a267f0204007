package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Pricing is the static cost table and the purchasable credit packages.
// It is read once at startup; changing it is a deployment action.
type Pricing struct {
	DefaultCost decimal.Decimal
	Costs       map[string]decimal.Decimal
	Packages    []PackageConfig
}

type PackageConfig struct {
	ID         string
	Name       string
	Credits    decimal.Decimal
	PriceMinor int64
	Currency   string
}

type rawPricing struct {
	DefaultCost string            `mapstructure:"defaultCost"`
	Providers   map[string]string `mapstructure:"providers"`
	Packages    []rawPackage      `mapstructure:"packages"`
}

type rawPackage struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Credits    string `mapstructure:"credits"`
	PriceMinor int64  `mapstructure:"priceMinor"`
	Currency   string `mapstructure:"currency"`
}

func DefaultPricing() Pricing {
	return Pricing{
		DefaultCost: decimal.NewFromInt(1),
		Costs: map[string]decimal.Decimal{
			"openai-gpt5":              decimal.NewFromInt(1),
			"openai-gpt5-mini":         decimal.RequireFromString("0.5"),
			"openai-gpt4o":             decimal.NewFromInt(1),
			"anthropic-claude4-sonnet": decimal.NewFromInt(2),
			"anthropic-claude4-opus":   decimal.NewFromInt(3),
			"anthropic-claude35-haiku": decimal.RequireFromString("0.5"),
			"google-gemini25-pro":      decimal.RequireFromString("1.5"),
			"google-gemini25-flash":    decimal.RequireFromString("0.5"),
		},
		Packages: []PackageConfig{
			{ID: "starter", Name: "Starter", Credits: decimal.NewFromInt(25), PriceMinor: 500, Currency: "usd"},
			{ID: "pro", Name: "Pro", Credits: decimal.NewFromInt(100), PriceMinor: 1500, Currency: "usd"},
			{ID: "business", Name: "Business", Credits: decimal.NewFromInt(500), PriceMinor: 6000, Currency: "usd"},
		},
	}
}

// LoadPricing reads pricing.yml from PRICING_CONFIG_PATH or the standard
// locations. A missing file yields DefaultPricing.
func LoadPricing(cfg Config) (Pricing, error) {
	v := viper.New()

	if cfg.PricingConfigPath != "" {
		v.SetConfigFile(cfg.PricingConfigPath)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/thinktest")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return DefaultPricing(), nil
		}
		return Pricing{}, fmt.Errorf("read pricing config: %w", err)
	}

	var raw rawPricing
	if err := v.UnmarshalKey("pricing", &raw); err != nil {
		return Pricing{}, fmt.Errorf("decode pricing config: %w", err)
	}
	return parsePricing(raw)
}

func parsePricing(raw rawPricing) (Pricing, error) {
	defaults := DefaultPricing()
	out := Pricing{
		DefaultCost: defaults.DefaultCost,
		Costs:       map[string]decimal.Decimal{},
	}

	if s := strings.TrimSpace(raw.DefaultCost); s != "" {
		cost, err := decimal.NewFromString(s)
		if err != nil {
			return Pricing{}, fmt.Errorf("pricing.defaultCost: %w", err)
		}
		out.DefaultCost = cost
	}

	for provider, value := range raw.Providers {
		cost, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return Pricing{}, fmt.Errorf("pricing.providers.%s: %w", provider, err)
		}
		out.Costs[strings.ToLower(strings.TrimSpace(provider))] = cost
	}
	if len(raw.Providers) == 0 {
		out.Costs = defaults.Costs
	}

	for _, pkg := range raw.Packages {
		credits, err := decimal.NewFromString(strings.TrimSpace(pkg.Credits))
		if err != nil {
			return Pricing{}, fmt.Errorf("pricing.packages.%s.credits: %w", pkg.ID, err)
		}
		out.Packages = append(out.Packages, PackageConfig{
			ID:         strings.ToLower(strings.TrimSpace(pkg.ID)),
			Name:       strings.TrimSpace(pkg.Name),
			Credits:    credits,
			PriceMinor: pkg.PriceMinor,
			Currency:   strings.ToLower(strings.TrimSpace(pkg.Currency)),
		})
	}
	if len(raw.Packages) == 0 {
		out.Packages = defaults.Packages
	}

	if err := validatePricing(out); err != nil {
		return Pricing{}, err
	}
	sort.SliceStable(out.Packages, func(i, j int) bool {
		return out.Packages[i].PriceMinor < out.Packages[j].PriceMinor
	})
	return out, nil
}

func validatePricing(p Pricing) error {
	if !p.DefaultCost.IsPositive() {
		return errors.New("pricing.defaultCost must be positive")
	}
	for provider, cost := range p.Costs {
		if provider == "" {
			return errors.New("pricing.providers contains an empty identifier")
		}
		if !cost.IsPositive() {
			return fmt.Errorf("pricing.providers.%s must be positive", provider)
		}
	}
	seen := map[string]struct{}{}
	for _, pkg := range p.Packages {
		if pkg.ID == "" {
			return errors.New("pricing.packages contains an empty id")
		}
		if _, ok := seen[pkg.ID]; ok {
			return fmt.Errorf("pricing.packages.%s is duplicated", pkg.ID)
		}
		seen[pkg.ID] = struct{}{}
		if !pkg.Credits.IsPositive() {
			return fmt.Errorf("pricing.packages.%s.credits must be positive", pkg.ID)
		}
		if pkg.PriceMinor <= 0 {
			return fmt.Errorf("pricing.packages.%s.priceMinor must be positive", pkg.ID)
		}
		if pkg.Currency == "" {
			return fmt.Errorf("pricing.packages.%s.currency is required", pkg.ID)
		}
	}
	return nil
}
