package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/providerkey/domain"
	"github.com/thinktestai/thinktest/internal/providerkey/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, secret string) (domain.Service, *gorm.DB) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.ProviderKey{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Cfg:   config.Config{ProviderKeySecret: secret},
	})
	require.NoError(t, err)
	return svc, db
}

func TestSetAndReadKey(t *testing.T) {
	svc, db := setupService(t, "provider-secret")
	ctx := context.Background()
	userID := snowflake.ID(5)

	summary, err := svc.SetKey(ctx, userID, "OpenAI", "sk-test-1234567890")
	require.NoError(t, err)
	assert.Equal(t, "openai", summary.Vendor)
	assert.Equal(t, "...7890", summary.Hint)

	var stored domain.ProviderKey
	require.NoError(t, db.Take(&stored).Error)
	assert.NotContains(t, string(stored.Secret), "sk-test-1234567890")

	key, ok, err := svc.Key(ctx, userID, "openai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test-1234567890", key)

	has, err := svc.HasKey(ctx, userID, "anthropic")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSetKeyReplacesExisting(t *testing.T) {
	svc, _ := setupService(t, "provider-secret")
	ctx := context.Background()
	userID := snowflake.ID(6)

	_, err := svc.SetKey(ctx, userID, "anthropic", "sk-ant-old-key-0001")
	require.NoError(t, err)
	_, err = svc.SetKey(ctx, userID, "anthropic", "sk-ant-new-key-0002")
	require.NoError(t, err)

	keys, err := svc.ListKeys(ctx, userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	key, ok, err := svc.Key(ctx, userID, "anthropic")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-ant-new-key-0002", key)
}

func TestCiphertextBoundToOwner(t *testing.T) {
	svc, db := setupService(t, "provider-secret")
	ctx := context.Background()

	_, err := svc.SetKey(ctx, snowflake.ID(7), "openai", "sk-owner-key-9999")
	require.NoError(t, err)

	require.NoError(t, db.Model(&domain.ProviderKey{}).
		Where("user_id = ?", 7).
		Update("user_id", 8).Error)

	_, _, err = svc.Key(ctx, snowflake.ID(8), "openai")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestDeleteKey(t *testing.T) {
	svc, _ := setupService(t, "provider-secret")
	ctx := context.Background()
	userID := snowflake.ID(9)

	assert.ErrorIs(t, svc.DeleteKey(ctx, userID, "openai"), domain.ErrNotFound)

	_, err := svc.SetKey(ctx, userID, "openai", "sk-delete-me-1234")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteKey(ctx, userID, "openai"))

	has, err := svc.HasKey(ctx, userID, "openai")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestValidation(t *testing.T) {
	svc, _ := setupService(t, "provider-secret")
	ctx := context.Background()

	_, err := svc.SetKey(ctx, 1, "mistral", "sk-whatever-123")
	assert.ErrorIs(t, err, domain.ErrInvalidVendor)
	_, err = svc.SetKey(ctx, 1, "openai", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
	_, err = svc.SetKey(ctx, 0, "openai", "sk-whatever-123")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestSetKeyWithoutSecret(t *testing.T) {
	svc, _ := setupService(t, "")
	_, err := svc.SetKey(context.Background(), 1, "openai", "sk-whatever-123")
	assert.ErrorIs(t, err, domain.ErrEncryptionKeyMissing)
}

func TestVendorOf(t *testing.T) {
	assert.Equal(t, "openai", domain.VendorOf("openai-gpt5-mini"))
	assert.Equal(t, "anthropic", domain.VendorOf(" Anthropic-Claude4-Opus "))
	assert.Equal(t, "local", domain.VendorOf("local"))
}
