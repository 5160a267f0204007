package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	creditrepository "github.com/thinktestai/thinktest/internal/credit/repository"
	creditservice "github.com/thinktestai/thinktest/internal/credit/service"
	"github.com/thinktestai/thinktest/internal/generation/domain"
	"github.com/thinktestai/thinktest/internal/generation/service"
	"github.com/thinktestai/thinktest/internal/providercost"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockProvider struct {
	mock.Mock
	vendor string
}

func (m *mockProvider) Vendor() string { return m.vendor }

func (m *mockProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	args := m.Called(ctx, req)
	completion, _ := args.Get(0).(*domain.Completion)
	return completion, args.Error(1)
}

type mockKeys struct {
	mock.Mock
}

func (m *mockKeys) ListCatalog(ctx context.Context) []providerkeydomain.CatalogVendor {
	return providerkeydomain.Catalog()
}

func (m *mockKeys) ListKeys(ctx context.Context, userID snowflake.ID) ([]providerkeydomain.KeySummary, error) {
	return nil, nil
}

func (m *mockKeys) SetKey(ctx context.Context, userID snowflake.ID, vendor string, apiKey string) (*providerkeydomain.KeySummary, error) {
	return nil, nil
}

func (m *mockKeys) DeleteKey(ctx context.Context, userID snowflake.ID, vendor string) error {
	return nil
}

func (m *mockKeys) HasKey(ctx context.Context, userID snowflake.ID, vendor string) (bool, error) {
	_, ok, err := m.Key(ctx, userID, vendor)
	return ok, err
}

func (m *mockKeys) Key(ctx context.Context, userID snowflake.ID, vendor string) (string, bool, error) {
	args := m.Called(userID, vendor)
	return args.String(0), args.Bool(1), args.Error(2)
}

type fixture struct {
	db      *gorm.DB
	credits creditdomain.Service
	openai  *mockProvider
	keys    *mockKeys
	svc     domain.Service
	userID  snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:gen_%s?mode=memory&cache=shared&_loc=auto", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&creditdomain.AccountBalance{}, &creditdomain.Transaction{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	costs, err := providercost.New(map[string]decimal.Decimal{
		"openai-gpt5":              decimal.NewFromInt(1),
		"anthropic-claude4-sonnet": decimal.NewFromInt(2),
	}, decimal.NewFromInt(1))
	require.NoError(t, err)

	cfg := config.Config{
		Credit:       config.CreditConfig{MaxRetries: 3},
		OpenAIAPIKey: "sk-platform",
		Generation:   config.GenerationConfig{Timeout: 5 * time.Second},
	}
	credits := creditservice.NewService(creditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  creditrepository.Provide(),
		Costs: costs,
		Cfg:   cfg,
	})

	openaiProvider := &mockProvider{vendor: providerkeydomain.VendorOpenAI}
	keys := &mockKeys{}
	svc := service.New(service.Params{
		Log:       zap.NewNop(),
		Cfg:       cfg,
		Credits:   credits,
		Keys:      keys,
		Providers: []domain.Provider{openaiProvider},
	})

	return &fixture{db: db, credits: credits, openai: openaiProvider, keys: keys, svc: svc, userID: node.Generate()}
}

func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	_, err := f.credits.Credit(context.Background(), creditdomain.CreditRequest{
		UserID: f.userID,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
}

func (f *fixture) transactions(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&creditdomain.Transaction{}).Where("user_id = ?", f.userID).Count(&count).Error)
	return count
}

func (f *fixture) request(provider string) domain.Request {
	return domain.Request{
		UserID:     f.userID,
		Provider:   provider,
		Framework:  "PHPUnit",
		PluginName: "hello-dolly",
		Code:       "<?php function hello_dolly() {}",
	}
}

func TestGenerateDeductsAfterSuccessfulCall(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "10")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)
	f.openai.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.APIKey == "sk-platform" && req.Model == "gpt-5" && strings.Contains(req.Prompt, "hello_dolly")
	})).Return(&domain.Completion{
		Text:         "```php\n<?php class HelloTest {}\n```",
		Model:        "gpt-5",
		InputTokens:  100,
		OutputTokens: 50,
	}, nil).Once()

	result, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.NoError(t, err)

	assert.True(t, result.Metered)
	assert.Equal(t, "<?php class HelloTest {}", result.Tests)
	assert.True(t, result.CreditsCharged.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, result.BalanceAfter)
	assert.True(t, result.BalanceAfter.Equal(decimal.NewFromInt(9)))
	assert.NotZero(t, result.TransactionID)

	balance, err := f.credits.GetBalance(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(9)))

	usage, err := f.credits.ListTransactions(context.Background(), creditdomain.TransactionFilter{
		UserID: f.userID,
		Type:   creditdomain.TransactionTypeUsage,
	})
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, "openai-gpt5", usage[0].Provider)
	assert.Equal(t, "hello-dolly", usage[0].Extra["plugin_slug"])
	f.openai.AssertExpectations(t)
}

func TestGenerateWithPrivateKeyIsNotMetered(t *testing.T) {
	f := newFixture(t)
	f.keys.On("Key", f.userID, "openai").Return("sk-user", true, nil)
	f.openai.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.APIKey == "sk-user"
	})).Return(&domain.Completion{Text: "tests", InputTokens: 10, OutputTokens: 5}, nil).Once()

	// No credits at all: the private key still works.
	result, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.NoError(t, err)

	assert.False(t, result.Metered)
	assert.True(t, result.CreditsCharged.IsZero())
	assert.Nil(t, result.BalanceAfter)
	assert.Zero(t, f.transactions(t))
	f.openai.AssertExpectations(t)
}

func TestGenerateRejectsInsufficientCreditsBeforeCallingProvider(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "0.5")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)

	_, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)

	f.openai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	assert.EqualValues(t, 1, f.transactions(t))
	assert.Contains(t, domain.UserMessage(err), "enough credits")
}

func TestGenerateProviderFailureDeductsNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)
	f.openai.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 500")).Once()

	_, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.ErrorIs(t, err, domain.ErrProviderFailed)

	balance, err := f.credits.GetBalance(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))
	assert.EqualValues(t, 1, f.transactions(t))
}

func TestGenerateEmptyCompletionDeductsNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)
	f.openai.On("Complete", mock.Anything, mock.Anything).Return(&domain.Completion{Text: "  "}, nil).Once()

	_, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.ErrorIs(t, err, domain.ErrEmptyCompletion)
	assert.EqualValues(t, 1, f.transactions(t))
}

func TestGenerateRejectsModelOverrideOnMeteredCall(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)

	req := f.request("openai-gpt5-mini")
	req.Model = "gpt-5"
	_, err := f.svc.Generate(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	f.openai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	balance, err := f.credits.GetBalance(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))
	assert.EqualValues(t, 1, f.transactions(t))
}

func TestGenerateAcceptsCatalogModelOnMeteredCall(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5")
	f.keys.On("Key", f.userID, "openai").Return("", false, nil)
	f.openai.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.Model == "gpt-5"
	})).Return(&domain.Completion{Text: "tests", Model: "gpt-5"}, nil).Once()

	req := f.request("openai-gpt5")
	req.Model = " gpt-5 "
	result, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.CreditsCharged.Equal(decimal.NewFromInt(1)))
	f.openai.AssertExpectations(t)
}

func TestGenerateModelOverrideWithPrivateKey(t *testing.T) {
	f := newFixture(t)
	f.keys.On("Key", f.userID, "openai").Return("sk-user", true, nil)
	f.openai.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
		return req.APIKey == "sk-user" && req.Model == "gpt-5"
	})).Return(&domain.Completion{Text: "tests", Model: "gpt-5"}, nil).Once()

	req := f.request("openai-gpt5-mini")
	req.Model = "gpt-5"
	result, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Metered)
	assert.Zero(t, f.transactions(t))
	f.openai.AssertExpectations(t)
}

func TestGenerateUnsupportedProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Generate(context.Background(), f.request("mistral-large"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	// Known model, but no adapter registered for its vendor.
	_, err = f.svc.Generate(context.Background(), f.request("anthropic-claude4-sonnet"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

func TestGenerateValidatesRequest(t *testing.T) {
	f := newFixture(t)

	req := f.request("openai-gpt5")
	req.Code = "   "
	_, err := f.svc.Generate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	req = f.request("openai-gpt5")
	req.UserID = 0
	_, err = f.svc.Generate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGenerateKeyStoreErrorFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5")
	f.keys.On("Key", f.userID, "openai").Return("", false, providerkeydomain.ErrEncryptionKeyMissing)

	_, err := f.svc.Generate(context.Background(), f.request("openai-gpt5"))
	require.ErrorIs(t, err, providerkeydomain.ErrEncryptionKeyMissing)
	f.openai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestModelsListsOnlyRegisteredVendors(t *testing.T) {
	f := newFixture(t)

	models := f.svc.Models(context.Background())
	require.NotEmpty(t, models)
	for _, spec := range models {
		assert.Equal(t, "openai", spec.Vendor)
	}
}
