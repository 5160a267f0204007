package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/credit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, balance *domain.AccountBalance) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(balance).Error
}

func (r *repo) LockBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.AccountBalance, error) {
	query := db.WithContext(ctx)
	// sqlite has no row locks; it serialises writers on the database file.
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item domain.AccountBalance
	err := query.Where("user_id = ?", userID).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.AccountBalance, error) {
	var item domain.AccountBalance
	err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, balance *domain.AccountBalance, expectedVersion int64) error {
	res := db.WithContext(ctx).
		Model(&domain.AccountBalance{}).
		Where("id = ? AND version = ?", balance.ID, expectedVersion).
		Updates(map[string]any{
			"balance":          balance.Balance,
			"total_purchased":  balance.TotalPurchased,
			"total_used":       balance.TotalUsed,
			"last_purchase_at": balance.LastPurchaseAt,
			"last_usage_at":    balance.LastUsageAt,
			"version":          expectedVersion + 1,
			"updated_at":       balance.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	balance.Version = expectedVersion + 1
	return nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := db.WithContext(ctx).
		Where("user_id = ?", filter.UserID).
		Order("id DESC")
	if filter.BeforeID != 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []domain.Transaction
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTransactionsAsc(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UsageByProvider(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.ProviderUsage, error) {
	var items []domain.ProviderUsage
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("provider, COUNT(*) AS calls, SUM(-amount) AS credits").
		Where("user_id = ? AND type = ?", userID, domain.TransactionTypeUsage).
		Group("provider").
		Order("provider").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
