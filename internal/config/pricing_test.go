package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPricingFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := `
pricing:
  defaultCost: "2"
  providers:
    openai-gpt5: "1.25"
    anthropic-claude4-opus: "3"
  packages:
    - id: big
      name: Big
      credits: "250"
      priceMinor: 2500
      currency: EUR
    - id: small
      name: Small
      credits: "10"
      priceMinor: 300
      currency: eur
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	pricing, err := LoadPricing(Config{PricingConfigPath: path})
	require.NoError(t, err)

	assert.True(t, pricing.DefaultCost.Equal(decimal.NewFromInt(2)))
	assert.True(t, pricing.Costs["openai-gpt5"].Equal(decimal.RequireFromString("1.25")))
	require.Len(t, pricing.Packages, 2)
	assert.Equal(t, "small", pricing.Packages[0].ID)
	assert.Equal(t, "eur", pricing.Packages[1].Currency)
}

func TestLoadPricingRejectsNonPositiveCost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := `
pricing:
  providers:
    openai-gpt5: "0"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadPricing(Config{PricingConfigPath: path})
	assert.Error(t, err)
}

func TestParsePricingFallsBackToDefaults(t *testing.T) {
	pricing, err := parsePricing(rawPricing{})
	require.NoError(t, err)

	defaults := DefaultPricing()
	assert.True(t, pricing.DefaultCost.Equal(defaults.DefaultCost))
	assert.Len(t, pricing.Costs, len(defaults.Costs))
	assert.Len(t, pricing.Packages, len(defaults.Packages))
}
