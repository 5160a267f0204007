package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/providerkey/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindKey(ctx context.Context, db *gorm.DB, userID snowflake.ID, vendor string) (*domain.ProviderKey, error) {
	var item domain.ProviderKey
	err := db.WithContext(ctx).
		Where("user_id = ? AND vendor = ?", userID, vendor).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListKeys(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.ProviderKey, error) {
	var items []domain.ProviderKey
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("vendor").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertKey(ctx context.Context, db *gorm.DB, key *domain.ProviderKey) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "vendor"}},
			DoUpdates: clause.AssignmentColumns([]string{"secret", "hint", "updated_at"}),
		}).
		Create(key).Error
}

func (r *repo) DeleteKey(ctx context.Context, db *gorm.DB, userID snowflake.ID, vendor string) (bool, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND vendor = ?", userID, vendor).
		Delete(&domain.ProviderKey{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
