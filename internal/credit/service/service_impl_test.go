package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
)

const opus = "anthropic-claude4-opus"

func TestGetBalanceDoesNotCreateRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(42)

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	var count int64
	require.NoError(t, f.db.Model(&creditdomain.AccountBalance{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGetBalanceRejectsZeroUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetBalance(context.Background(), 0)
	assert.ErrorIs(t, err, creditdomain.ErrInvalidUser)
}

func TestDeductThenInsufficientLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(7)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "5")})
	require.NoError(t, err)

	txn, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{
		UserID:       userID,
		Provider:     opus,
		Model:        "claude-opus-4",
		InputTokens:  1200,
		OutputTokens: 800,
	})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionTypeUsage, txn.Type)
	assert.True(t, txn.Amount.Equal(dec(t, "-3")))
	assert.True(t, txn.BalanceBefore.Equal(dec(t, "5")))
	assert.True(t, txn.BalanceAfter.Equal(dec(t, "2")))
	assert.Equal(t, opus, txn.Provider)
	assert.Equal(t, int64(1200), txn.InputTokens)

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "2")))

	_, err = f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: opus})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)

	balance, err = f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "2")))
	assert.Equal(t, int64(2), countTransactions(t, f.db, userID))
}

func TestDeductRetriesVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(11)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "6")})
	require.NoError(t, err)

	f.repo.failNext(3)
	txn, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	require.NoError(t, err)
	assert.True(t, txn.BalanceBefore.Equal(dec(t, "6")))
	assert.True(t, txn.BalanceAfter.Equal(dec(t, "5")))
	assert.Equal(t, 4, f.repo.updateCalls())
	assert.Equal(t, int64(2), countTransactions(t, f.db, userID))
	require.NoError(t, f.svc.VerifyHistory(ctx, userID))
}

func TestDeductGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(12)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "5")})
	require.NoError(t, err)

	f.repo.failNext(10)
	_, err = f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	require.ErrorIs(t, err, creditdomain.ErrConcurrentModification)
	assert.Equal(t, 4, f.repo.updateCalls())

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "5")))
	assert.Equal(t, int64(1), countTransactions(t, f.db, userID))
}

func TestCreditAndAdjustRetryVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(13)

	f.repo.failNext(2)
	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "5")})
	require.NoError(t, err)

	f.repo.failNext(1)
	txn, err := f.svc.Adjust(ctx, creditdomain.AdjustRequest{UserID: userID, Amount: dec(t, "-2")})
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.Equal(dec(t, "3")))
	assert.Equal(t, int64(2), countTransactions(t, f.db, userID))
	require.NoError(t, f.svc.VerifyHistory(ctx, userID))
}

func TestDeductOnFreshAccountFailsWithoutTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(9)

	_, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
	assert.Equal(t, int64(0), countTransactions(t, f.db, userID))
}

func TestDeductExactBalanceLeavesZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(10)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "2")})
	require.NoError(t, err)

	txn, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "anthropic-claude4-sonnet"})
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.IsZero())
}

func TestDeductUnknownProviderUsesDefaultCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(11)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "3")})
	require.NoError(t, err)

	txn, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "mistral-large"})
	require.NoError(t, err)
	assert.True(t, txn.Amount.Equal(dec(t, "-1")))
}

func TestDeductRejectsEmptyProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deduct(context.Background(), creditdomain.DeductRequest{UserID: 1, Provider: "  "})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidProvider)
}

func TestDeductIsNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(12)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "10")})
	require.NoError(t, err)

	req := creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5", Model: "gpt-5"}
	for i := 0; i < 4; i++ {
		_, err := f.svc.Deduct(ctx, req)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(5), countTransactions(t, f.db, userID))
	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "6")))
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(13)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "3")})
	require.NoError(t, err)

	const callers = 2
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
		other    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: opus})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, creditdomain.ErrInsufficientCredits):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, rejected)

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	require.NoError(t, f.svc.VerifyHistory(ctx, userID))
}

func TestCreditValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  creditdomain.CreditRequest
		want error
	}{
		{name: "zero_user", req: creditdomain.CreditRequest{Amount: dec(t, "1")}, want: creditdomain.ErrInvalidUser},
		{name: "zero_amount", req: creditdomain.CreditRequest{UserID: 1, Amount: dec(t, "0")}, want: creditdomain.ErrInvalidAmount},
		{name: "negative_amount", req: creditdomain.CreditRequest{UserID: 1, Amount: dec(t, "-2")}, want: creditdomain.ErrInvalidAmount},
		{name: "usage_type", req: creditdomain.CreditRequest{UserID: 1, Amount: dec(t, "1"), Type: creditdomain.TransactionTypeUsage}, want: creditdomain.ErrInvalidTransactionType},
		{name: "unknown_type", req: creditdomain.CreditRequest{UserID: 1, Amount: dec(t, "1"), Type: "gift"}, want: creditdomain.ErrInvalidTransactionType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Credit(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreditPurchaseUpdatesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(14)

	txn, err := f.svc.Credit(ctx, creditdomain.CreditRequest{
		UserID: userID,
		Amount: dec(t, "25"),
		Metadata: creditdomain.TransactionMetadata{
			PaymentReference: "pi_123",
			Extra:            map[string]any{"package_id": "starter"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionTypePurchase, txn.Type)
	assert.Equal(t, "pi_123", txn.PaymentReference)

	_, err = f.svc.Credit(ctx, creditdomain.CreditRequest{
		UserID: userID,
		Amount: dec(t, "5"),
		Type:   creditdomain.TransactionTypeBonus,
	})
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, userID, 10)
	require.NoError(t, err)
	assert.True(t, status.Balance.Equal(dec(t, "30")))
	assert.True(t, status.TotalPurchased.Equal(dec(t, "25")))
	assert.True(t, status.TotalUsed.IsZero())
	assert.NotNil(t, status.LastPurchaseAt)
	assert.Nil(t, status.LastUsageAt)
}

func TestAdjustCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(15)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "2")})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, creditdomain.AdjustRequest{UserID: userID, Amount: dec(t, "-3")})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)

	txn, err := f.svc.Adjust(ctx, creditdomain.AdjustRequest{UserID: userID, Amount: dec(t, "-1.5"), Description: "support correction"})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionTypeAdjustment, txn.Type)
	assert.True(t, txn.BalanceAfter.Equal(dec(t, "0.5")))

	_, err = f.svc.Adjust(ctx, creditdomain.AdjustRequest{UserID: userID, Amount: dec(t, "0")})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidAmount)
}

func TestLinearHistoryAndTotalsInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(16)

	steps := []func() error{
		func() error {
			_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "10")})
			return err
		},
		func() error {
			_, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5-mini"})
			return err
		},
		func() error {
			_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "2"), Type: creditdomain.TransactionTypeBonus})
			return err
		},
		func() error {
			_, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: opus})
			return err
		},
		func() error {
			_, err := f.svc.Adjust(ctx, creditdomain.AdjustRequest{UserID: userID, Amount: dec(t, "-1")})
			return err
		},
		func() error {
			_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "1"), Type: creditdomain.TransactionTypeRefund})
			return err
		},
	}
	for _, step := range steps {
		f.clock.Advance(1)
		require.NoError(t, step())
	}

	txns, err := f.svc.ListTransactions(ctx, creditdomain.TransactionFilter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, txns, len(steps))

	// Newest first; walk backwards for creation order.
	running := dec(t, "0")
	net := dec(t, "0")
	for i := len(txns) - 1; i >= 0; i-- {
		txn := txns[i]
		assert.True(t, txn.BalanceBefore.Equal(running), "balance_before of %s", txn.ID)
		assert.True(t, txn.BalanceBefore.Add(txn.Amount).Equal(txn.BalanceAfter))
		if txn.Type != creditdomain.TransactionTypePurchase && txn.Type != creditdomain.TransactionTypeUsage {
			net = net.Add(txn.Amount)
		}
		running = txn.BalanceAfter
	}

	status, err := f.svc.GetStatus(ctx, userID, 3)
	require.NoError(t, err)
	assert.Len(t, status.RecentTransactions, 3)
	assert.True(t, status.Balance.Equal(running))
	assert.True(t, status.Balance.Equal(status.TotalPurchased.Sub(status.TotalUsed).Add(net)))
	assert.True(t, status.TotalUsed.Equal(dec(t, "3.5")))

	require.Len(t, status.UsageByProvider, 2)
	assert.Equal(t, opus, status.UsageByProvider[0].Provider)
	assert.Equal(t, int64(1), status.UsageByProvider[0].Calls)
	assert.True(t, status.UsageByProvider[0].Credits.Equal(dec(t, "3")))
	assert.Equal(t, "openai-gpt5-mini", status.UsageByProvider[1].Provider)

	require.NoError(t, f.svc.VerifyHistory(ctx, userID))
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(17)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "5")})
	require.NoError(t, err)
	first, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	require.NoError(t, err)
	second, err := f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	require.NoError(t, err)

	usage, err := f.svc.ListTransactions(ctx, creditdomain.TransactionFilter{UserID: userID, Type: creditdomain.TransactionTypeUsage})
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, second.ID, usage[0].ID)

	page, err := f.svc.ListTransactions(ctx, creditdomain.TransactionFilter{UserID: userID, BeforeID: second.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	_, err = f.svc.ListTransactions(ctx, creditdomain.TransactionFilter{UserID: userID, Type: "gift"})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidTransactionType)
}

func TestVerifyHistoryDetectsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(18)

	_, err := f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "5")})
	require.NoError(t, err)
	_, err = f.svc.Deduct(ctx, creditdomain.DeductRequest{UserID: userID, Provider: "openai-gpt5"})
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyHistory(ctx, userID))

	require.NoError(t, f.db.Model(&creditdomain.AccountBalance{}).
		Where("user_id = ?", userID).
		Update("balance", dec(t, "100")).Error)

	err = f.svc.VerifyHistory(ctx, userID)
	assert.ErrorIs(t, err, creditdomain.ErrLedgerIntegrity)
}

func TestVerifyHistoryEmptyAccount(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.VerifyHistory(context.Background(), snowflake.ID(19)))
}

func TestHasSufficientCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := snowflake.ID(20)

	ok, err := f.svc.HasSufficientCredits(ctx, userID, "openai-gpt5")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Credit(ctx, creditdomain.CreditRequest{UserID: userID, Amount: dec(t, "2")})
	require.NoError(t, err)

	ok, err = f.svc.HasSufficientCredits(ctx, userID, "anthropic-claude4-sonnet")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasSufficientCredits(ctx, userID, opus)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.HasSufficientCredits(ctx, userID, "")
	assert.ErrorIs(t, err, creditdomain.ErrInvalidProvider)
}
