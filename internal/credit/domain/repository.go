package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureBalance inserts balance unless a row for the same user exists.
	EnsureBalance(ctx context.Context, db *gorm.DB, balance *AccountBalance) error
	// LockBalance reads the user's row holding a row lock for the rest of db's transaction.
	LockBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*AccountBalance, error)
	FindBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*AccountBalance, error)
	// UpdateBalance writes balance if its stored version still equals expectedVersion.
	UpdateBalance(ctx context.Context, db *gorm.DB, balance *AccountBalance, expectedVersion int64) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]Transaction, error)
	ListTransactionsAsc(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Transaction, error)
	UsageByProvider(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]ProviderUsage, error)
}

// TransactionFilter selects a newest-first page of a user's transactions.
type TransactionFilter struct {
	UserID   snowflake.ID
	Type     TransactionType
	BeforeID snowflake.ID
	Limit    int
}
