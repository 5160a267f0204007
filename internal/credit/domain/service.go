package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service meters credit usage and owns every write to balances and transactions.
type Service interface {
	GetBalance(ctx context.Context, userID snowflake.ID) (decimal.Decimal, error)
	HasSufficientCredits(ctx context.Context, userID snowflake.ID, provider string) (bool, error)
	Deduct(ctx context.Context, req DeductRequest) (*Transaction, error)
	Credit(ctx context.Context, req CreditRequest) (*Transaction, error)
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (*Transaction, error)
	Adjust(ctx context.Context, req AdjustRequest) (*Transaction, error)
	AdjustTx(ctx context.Context, tx *gorm.DB, req AdjustRequest) (*Transaction, error)
	GetStatus(ctx context.Context, userID snowflake.ID, recentLimit int) (*Status, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	VerifyHistory(ctx context.Context, userID snowflake.ID) error
}

// DeductRequest charges the provider's cost after a successful paid call.
type DeductRequest struct {
	UserID       snowflake.ID
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Description  string
	Extra        map[string]any
}

// CreditRequest adds a positive amount. Type defaults to purchase.
type CreditRequest struct {
	UserID      snowflake.ID
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
	Metadata    TransactionMetadata
}

// AdjustRequest applies a signed correction.
type AdjustRequest struct {
	UserID      snowflake.ID
	Amount      decimal.Decimal
	Description string
	Metadata    TransactionMetadata
}
