package receipt

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appconfig "github.com/thinktestai/thinktest/internal/config"
)

func TestGenerateProducesPDF(t *testing.T) {
	gen := New(appconfig.Config{})
	refunded := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	out, err := gen.Generate(context.Background(), Data{
		Number:      "1790000000000000000",
		CustomerID:  "42",
		PackageName: "Starter",
		Credits:     decimal.NewFromInt(25),
		Amount:      500,
		Currency:    "usd",
		Reference:   "pi_123",
		PaidAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		RefundedAt:  &refunded,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateRejectsIncompleteData(t *testing.T) {
	gen := New(appconfig.Config{})

	_, err := gen.Generate(context.Background(), Data{Number: "1"})
	assert.ErrorIs(t, err, ErrIncompleteReceipt)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5.00 USD", FormatAmount(500, "usd"))
	assert.Equal(t, "19.99 EUR", FormatAmount(1999, " eur "))
	assert.Equal(t, "0.05 USD", FormatAmount(5, "USD"))
}
