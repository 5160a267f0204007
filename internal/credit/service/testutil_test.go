package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	"github.com/thinktestai/thinktest/internal/credit/repository"
	"github.com/thinktestai/thinktest/internal/providercost"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   creditdomain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
	repo  *conflictingRepository
}

// conflictingRepository loses the version race on the next n balance updates.
type conflictingRepository struct {
	creditdomain.Repository

	mu        sync.Mutex
	conflicts int
	updates   int
}

func (r *conflictingRepository) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
	r.updates = 0
}

func (r *conflictingRepository) updateCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

func (r *conflictingRepository) UpdateBalance(ctx context.Context, db *gorm.DB, balance *creditdomain.AccountBalance, expectedVersion int64) error {
	r.mu.Lock()
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return creditdomain.ErrConcurrentModification
	}
	r.mu.Unlock()
	return r.Repository.UpdateBalance(ctx, db, balance, expectedVersion)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serialises writers the way row locks do on postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&creditdomain.AccountBalance{}, &creditdomain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	costs, err := providercost.New(map[string]decimal.Decimal{
		"openai-gpt5":              decimal.NewFromInt(1),
		"openai-gpt5-mini":         decimal.RequireFromString("0.5"),
		"anthropic-claude4-sonnet": decimal.NewFromInt(2),
		"anthropic-claude4-opus":   decimal.NewFromInt(3),
	}, decimal.NewFromInt(1))
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := &conflictingRepository{Repository: repository.Provide()}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repo,
		Costs: costs,
		Cfg:   config.Config{Credit: config.CreditConfig{MaxRetries: 3}},
	})

	return &fixture{db: db, svc: svc, clock: clk, node: node, repo: repo}
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func countTransactions(t *testing.T, db *gorm.DB, userID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&creditdomain.Transaction{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}
