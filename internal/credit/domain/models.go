package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeUsage      TransactionType = "usage"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePurchase,
		TransactionTypeUsage,
		TransactionTypeRefund,
		TransactionTypeBonus,
		TransactionTypeAdjustment:
		return true
	default:
		return false
	}
}

// AmountAllowed reports whether a signed amount matches the type:
// usage debits, purchase/bonus/refund credit, adjustment goes either way.
func (t TransactionType) AmountAllowed(amount decimal.Decimal) bool {
	switch t {
	case TransactionTypeUsage:
		return amount.IsNegative()
	case TransactionTypePurchase, TransactionTypeBonus, TransactionTypeRefund:
		return amount.IsPositive()
	case TransactionTypeAdjustment:
		return !amount.IsZero()
	default:
		return false
	}
}

// AccountBalance is the per-user ledger summary. Only the credit service
// writes it, always together with a Transaction row.
type AccountBalance struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID    `json:"user_id" gorm:"not null;uniqueIndex:ux_credit_balances_user"`
	Balance        decimal.Decimal `json:"balance" gorm:"type:decimal(20,4);not null"`
	TotalPurchased decimal.Decimal `json:"total_purchased" gorm:"type:decimal(20,4);not null"`
	TotalUsed      decimal.Decimal `json:"total_used" gorm:"type:decimal(20,4);not null"`
	LastPurchaseAt *time.Time      `json:"last_purchase_at"`
	LastUsageAt    *time.Time      `json:"last_usage_at"`
	Version        int64           `json:"-" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (AccountBalance) TableName() string { return "credit_balances" }

// Transaction is an immutable ledger entry. Corrections are new rows.
type Transaction struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID      `json:"user_id" gorm:"not null;index:ix_credit_transactions_user"`
	Type             TransactionType   `json:"type" gorm:"type:varchar(32);not null"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:decimal(20,4);not null"`
	BalanceBefore    decimal.Decimal   `json:"balance_before" gorm:"type:decimal(20,4);not null"`
	BalanceAfter     decimal.Decimal   `json:"balance_after" gorm:"type:decimal(20,4);not null"`
	Description      string            `json:"description" gorm:"type:text;not null"`
	Provider         string            `json:"provider,omitempty" gorm:"type:varchar(128)"`
	Model            string            `json:"model,omitempty" gorm:"type:varchar(128)"`
	InputTokens      int64             `json:"input_tokens,omitempty"`
	OutputTokens     int64             `json:"output_tokens,omitempty"`
	PaymentReference string            `json:"payment_reference,omitempty" gorm:"type:varchar(255);index"`
	PaymentIntentID  snowflake.ID      `json:"payment_intent_id,omitempty"`
	Extra            datatypes.JSONMap `json:"extra,omitempty"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "credit_transactions" }

// Metadata returns the typed view of the row's metadata columns.
func (t Transaction) Metadata() TransactionMetadata {
	return TransactionMetadata{
		Provider:         t.Provider,
		Model:            t.Model,
		InputTokens:      t.InputTokens,
		OutputTokens:     t.OutputTokens,
		PaymentReference: t.PaymentReference,
		PaymentIntentID:  t.PaymentIntentID,
		Extra:            map[string]any(t.Extra),
	}
}

// TransactionMetadata carries the well-known metadata fields of a
// transaction plus an open extension map.
type TransactionMetadata struct {
	Provider         string
	Model            string
	InputTokens      int64
	OutputTokens     int64
	PaymentReference string
	PaymentIntentID  snowflake.ID
	Extra            map[string]any
}

// ProviderUsage aggregates usage transactions for one provider.
type ProviderUsage struct {
	Provider string          `json:"provider"`
	Calls    int64           `json:"calls"`
	Credits  decimal.Decimal `json:"credits"`
}

// Status is the read-only account summary shown to users.
type Status struct {
	UserID             snowflake.ID    `json:"user_id"`
	Balance            decimal.Decimal `json:"balance"`
	TotalPurchased     decimal.Decimal `json:"total_purchased"`
	TotalUsed          decimal.Decimal `json:"total_used"`
	LastPurchaseAt     *time.Time      `json:"last_purchase_at"`
	LastUsageAt        *time.Time      `json:"last_usage_at"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
	UsageByProvider    []ProviderUsage `json:"usage_by_provider"`
}
