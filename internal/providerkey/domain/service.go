package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	ListCatalog(ctx context.Context) []CatalogVendor
	ListKeys(ctx context.Context, userID snowflake.ID) ([]KeySummary, error)
	SetKey(ctx context.Context, userID snowflake.ID, vendor string, apiKey string) (*KeySummary, error)
	DeleteKey(ctx context.Context, userID snowflake.ID, vendor string) error
	HasKey(ctx context.Context, userID snowflake.ID, vendor string) (bool, error)
	// Key returns the decrypted key, or ok=false when none is stored.
	Key(ctx context.Context, userID snowflake.ID, vendor string) (key string, ok bool, err error)
}

type Repository interface {
	FindKey(ctx context.Context, db *gorm.DB, userID snowflake.ID, vendor string) (*ProviderKey, error)
	ListKeys(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]ProviderKey, error)
	UpsertKey(ctx context.Context, db *gorm.DB, key *ProviderKey) error
	DeleteKey(ctx context.Context, db *gorm.DB, userID snowflake.ID, vendor string) (bool, error)
}

type KeySummary struct {
	Vendor     string    `json:"vendor"`
	Configured bool      `json:"configured"`
	Hint       string    `json:"hint,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidVendor        = errors.New("invalid_vendor")
	ErrInvalidKey           = errors.New("invalid_key")
	ErrNotFound             = errors.New("not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
)
