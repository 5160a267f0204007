package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	"github.com/thinktestai/thinktest/internal/providercost"
	"github.com/thinktestai/thinktest/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries  = 3
	defaultRecentLimit = 10
	maxRecentLimit     = 100
	maxListLimit       = 500
	retryBackoff       = 5 * time.Millisecond
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          creditdomain.Repository
	Costs         *providercost.Table
	Cfg           config.Config
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          creditdomain.Repository
	costs         *providercost.Table
	maxRetries    int
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) creditdomain.Service {
	maxRetries := p.Cfg.Credit.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("credit.service"),
		genID:         p.GenID,
		clock:         clk,
		repo:          p.Repo,
		costs:         p.Costs,
		maxRetries:    maxRetries,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// mutation describes one balance change and the transaction row recording it.
type mutation struct {
	operation    string
	txnType      creditdomain.TransactionType
	amount       decimal.Decimal
	description  string
	metadata     creditdomain.TransactionMetadata
	requireFunds bool
}

func (s *Service) GetBalance(ctx context.Context, userID snowflake.ID) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, creditdomain.ErrInvalidUser
	}
	balance, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if balance == nil {
		return decimal.Zero, nil
	}
	return balance.Balance, nil
}

func (s *Service) HasSufficientCredits(ctx context.Context, userID snowflake.ID, provider string) (bool, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return false, creditdomain.ErrInvalidProvider
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(s.costs.Cost(provider)), nil
}

func (s *Service) Deduct(ctx context.Context, req creditdomain.DeductRequest) (*creditdomain.Transaction, error) {
	if req.UserID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		return nil, creditdomain.ErrInvalidProvider
	}
	cost := s.costs.Cost(provider)

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("AI usage: %s", provider)
	}

	txn, err := s.run(ctx, req.UserID, mutation{
		operation:   obsmetrics.LedgerOperationDeduct,
		txnType:     creditdomain.TransactionTypeUsage,
		amount:      cost.Neg(),
		description: description,
		metadata: creditdomain.TransactionMetadata{
			Provider:     provider,
			Model:        strings.TrimSpace(req.Model),
			InputTokens:  req.InputTokens,
			OutputTokens: req.OutputTokens,
			Extra:        req.Extra,
		},
		requireFunds: true,
	})
	if err != nil {
		if errors.Is(err, creditdomain.ErrInsufficientCredits) {
			s.obsMetrics.RecordInsufficientCredits(ctx, provider)
			s.log.Info("insufficient credits",
				zap.String("user_id", req.UserID.String()),
				zap.String("provider", provider),
				zap.String("cost", cost.String()),
			)
		}
		return nil, err
	}

	s.obsMetrics.RecordCreditsDeducted(ctx, provider, cost.InexactFloat64())
	return txn, nil
}

func (s *Service) Credit(ctx context.Context, req creditdomain.CreditRequest) (*creditdomain.Transaction, error) {
	m, err := creditMutation(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, req.UserID, m)
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req creditdomain.CreditRequest) (*creditdomain.Transaction, error) {
	m, err := creditMutation(req)
	if err != nil {
		return nil, err
	}
	return s.applyObserved(ctx, tx, req.UserID, m)
}

func (s *Service) Adjust(ctx context.Context, req creditdomain.AdjustRequest) (*creditdomain.Transaction, error) {
	m, err := adjustMutation(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, req.UserID, m)
}

func (s *Service) AdjustTx(ctx context.Context, tx *gorm.DB, req creditdomain.AdjustRequest) (*creditdomain.Transaction, error) {
	m, err := adjustMutation(req)
	if err != nil {
		return nil, err
	}
	return s.applyObserved(ctx, tx, req.UserID, m)
}

func creditMutation(req creditdomain.CreditRequest) (mutation, error) {
	if req.UserID == 0 {
		return mutation{}, creditdomain.ErrInvalidUser
	}
	txnType := req.Type
	if txnType == "" {
		txnType = creditdomain.TransactionTypePurchase
	}
	if !txnType.Valid() || txnType == creditdomain.TransactionTypeUsage {
		return mutation{}, creditdomain.ErrInvalidTransactionType
	}
	if !req.Amount.IsPositive() {
		return mutation{}, creditdomain.ErrInvalidAmount
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Credit %s: %s", txnType, req.Amount.String())
	}
	return mutation{
		operation:   obsmetrics.LedgerOperationCredit,
		txnType:     txnType,
		amount:      req.Amount,
		description: description,
		metadata:    req.Metadata,
	}, nil
}

func adjustMutation(req creditdomain.AdjustRequest) (mutation, error) {
	if req.UserID == 0 {
		return mutation{}, creditdomain.ErrInvalidUser
	}
	if req.Amount.IsZero() {
		return mutation{}, creditdomain.ErrInvalidAmount
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Adjustment: %s", req.Amount.String())
	}
	return mutation{
		operation:    obsmetrics.LedgerOperationAdjust,
		txnType:      creditdomain.TransactionTypeAdjustment,
		amount:       req.Amount,
		description:  description,
		metadata:     req.Metadata,
		requireFunds: req.Amount.IsNegative(),
	}, nil
}

// run executes m in its own database transaction, retrying the whole unit
// when another writer bumped the balance version first.
func (s *Service) run(ctx context.Context, userID snowflake.ID, m mutation) (*creditdomain.Transaction, error) {
	start := time.Now()
	var (
		txn *creditdomain.Transaction
		err error
	)
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.ledgerMetrics.IncRetry(m.operation)
			s.obsMetrics.RecordLedgerConflict(ctx, m.operation)
			s.log.Warn("ledger version conflict, retrying",
				zap.String("operation", m.operation),
				zap.String("user_id", userID.String()),
				zap.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var applyErr error
			txn, applyErr = s.apply(ctx, tx, userID, m)
			return applyErr
		})
		if !retryable(err) {
			break
		}
	}

	s.observe(ctx, m, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// retryable covers a lost version race and the database's own contention
// errors (serialization failure, deadlock, lock timeout).
func retryable(err error) bool {
	return errors.Is(err, creditdomain.ErrConcurrentModification) || db.IsRetryable(err)
}

func (s *Service) applyObserved(ctx context.Context, tx *gorm.DB, userID snowflake.ID, m mutation) (*creditdomain.Transaction, error) {
	start := time.Now()
	txn, err := s.apply(ctx, tx, userID, m)
	s.observe(ctx, m, time.Since(start), err)
	return txn, err
}

func (s *Service) observe(ctx context.Context, m mutation, elapsed time.Duration, err error) {
	outcome := obsmetrics.LedgerOutcomeOK
	switch {
	case err == nil:
		s.obsMetrics.RecordCreditTransaction(ctx, string(m.txnType))
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		outcome = obsmetrics.LedgerOutcomeInsufficient
	case errors.Is(err, creditdomain.ErrConcurrentModification):
		outcome = obsmetrics.LedgerOutcomeConflict
		s.log.Warn("ledger retries exhausted", zap.String("operation", m.operation), zap.Error(err))
	default:
		outcome = obsmetrics.LedgerOutcomeError
		s.ledgerMetrics.IncError(m.operation, err)
	}
	s.ledgerMetrics.ObserveOperation(m.operation, outcome, elapsed)
}

// apply runs ensure, lock, validate, write, append on tx. Every statement
// must go through tx.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, userID snowflake.ID, m mutation) (*creditdomain.Transaction, error) {
	now := s.clock.Now()

	if err := s.repo.EnsureBalance(ctx, tx, &creditdomain.AccountBalance{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Balance:        decimal.Zero,
		TotalPurchased: decimal.Zero,
		TotalUsed:      decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return nil, err
	}

	lockStart := time.Now()
	balance, err := s.repo.LockBalance(ctx, tx, userID)
	s.ledgerMetrics.ObserveLockWait("credit_balance", time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, fmt.Errorf("credit balance for user %s missing after ensure", userID)
	}

	before := balance.Balance
	after := before.Add(m.amount)
	if m.requireFunds && after.IsNegative() {
		return nil, creditdomain.ErrInsufficientCredits
	}
	if !m.txnType.AmountAllowed(m.amount) {
		return nil, creditdomain.ErrInvalidAmount
	}

	balance.Balance = after
	balance.UpdatedAt = now
	switch m.txnType {
	case creditdomain.TransactionTypePurchase:
		balance.TotalPurchased = balance.TotalPurchased.Add(m.amount)
		balance.LastPurchaseAt = &now
	case creditdomain.TransactionTypeUsage:
		balance.TotalUsed = balance.TotalUsed.Add(m.amount.Neg())
		balance.LastUsageAt = &now
	}

	if err := s.repo.UpdateBalance(ctx, tx, balance, balance.Version); err != nil {
		return nil, err
	}

	txn := &creditdomain.Transaction{
		ID:               s.genID.Generate(),
		UserID:           userID,
		Type:             m.txnType,
		Amount:           m.amount,
		BalanceBefore:    before,
		BalanceAfter:     after,
		Description:      m.description,
		Provider:         m.metadata.Provider,
		Model:            m.metadata.Model,
		InputTokens:      m.metadata.InputTokens,
		OutputTokens:     m.metadata.OutputTokens,
		PaymentReference: m.metadata.PaymentReference,
		PaymentIntentID:  m.metadata.PaymentIntentID,
		CreatedAt:        now,
	}
	if len(m.metadata.Extra) > 0 {
		txn.Extra = datatypes.JSONMap(m.metadata.Extra)
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) GetStatus(ctx context.Context, userID snowflake.ID, recentLimit int) (*creditdomain.Status, error) {
	if userID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	if recentLimit > maxRecentLimit {
		recentLimit = maxRecentLimit
	}

	status := &creditdomain.Status{
		UserID:             userID,
		Balance:            decimal.Zero,
		TotalPurchased:     decimal.Zero,
		TotalUsed:          decimal.Zero,
		RecentTransactions: []creditdomain.Transaction{},
		UsageByProvider:    []creditdomain.ProviderUsage{},
	}

	balance, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return status, nil
	}
	status.Balance = balance.Balance
	status.TotalPurchased = balance.TotalPurchased
	status.TotalUsed = balance.TotalUsed
	status.LastPurchaseAt = balance.LastPurchaseAt
	status.LastUsageAt = balance.LastUsageAt

	recent, err := s.repo.ListTransactions(ctx, s.db, creditdomain.TransactionFilter{
		UserID: userID,
		Limit:  recentLimit,
	})
	if err != nil {
		return nil, err
	}
	status.RecentTransactions = recent

	usage, err := s.repo.UsageByProvider(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	status.UsageByProvider = usage
	return status, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter creditdomain.TransactionFilter) ([]creditdomain.Transaction, error) {
	if filter.UserID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, creditdomain.ErrInvalidTransactionType
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repo.ListTransactions(ctx, s.db, filter)
}

// VerifyHistory replays the user's transactions in creation order and checks
// them against the stored balance row.
func (s *Service) VerifyHistory(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return creditdomain.ErrInvalidUser
	}
	balance, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return err
	}
	txns, err := s.repo.ListTransactionsAsc(ctx, s.db, userID)
	if err != nil {
		return err
	}

	running := decimal.Zero
	purchased := decimal.Zero
	used := decimal.Zero
	for _, txn := range txns {
		if !txn.BalanceBefore.Equal(running) {
			return s.integrityError(userID, fmt.Sprintf("transaction %s balance_before %s, expected %s", txn.ID, txn.BalanceBefore, running))
		}
		if !txn.BalanceBefore.Add(txn.Amount).Equal(txn.BalanceAfter) {
			return s.integrityError(userID, fmt.Sprintf("transaction %s balance_after does not equal balance_before plus amount", txn.ID))
		}
		if !txn.Type.AmountAllowed(txn.Amount) {
			return s.integrityError(userID, fmt.Sprintf("transaction %s amount sign does not match type %s", txn.ID, txn.Type))
		}
		if txn.BalanceAfter.IsNegative() {
			return s.integrityError(userID, fmt.Sprintf("transaction %s leaves a negative balance", txn.ID))
		}
		switch txn.Type {
		case creditdomain.TransactionTypePurchase:
			purchased = purchased.Add(txn.Amount)
		case creditdomain.TransactionTypeUsage:
			used = used.Add(txn.Amount.Neg())
		}
		running = txn.BalanceAfter
	}

	if balance == nil {
		if len(txns) > 0 {
			return s.integrityError(userID, "transactions exist without a balance row")
		}
		return nil
	}
	if !balance.Balance.Equal(running) {
		return s.integrityError(userID, fmt.Sprintf("balance %s, replay gives %s", balance.Balance, running))
	}
	if !balance.TotalPurchased.Equal(purchased) {
		return s.integrityError(userID, fmt.Sprintf("total_purchased %s, replay gives %s", balance.TotalPurchased, purchased))
	}
	if !balance.TotalUsed.Equal(used) {
		return s.integrityError(userID, fmt.Sprintf("total_used %s, replay gives %s", balance.TotalUsed, used))
	}
	return nil
}

func (s *Service) integrityError(userID snowflake.ID, detail string) error {
	s.log.Error("ledger integrity violation",
		zap.String("user_id", userID.String()),
		zap.String("detail", detail),
	)
	return fmt.Errorf("%w: %s", creditdomain.ErrLedgerIntegrity, detail)
}
