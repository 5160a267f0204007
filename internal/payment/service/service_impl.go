package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/clock"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	pkgdb "github.com/thinktestai/thinktest/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries   = 3
	defaultListLimit    = 20
	maxListLimit        = 100
	conflictBackoffUnit = 5 * time.Millisecond
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Pricing       config.Pricing
	Repo          paymentdomain.Repository
	CreditSvc     creditdomain.Service
	Gateway       paymentdomain.Gateway     `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	LedgerMetrics *obsmetrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          paymentdomain.Repository
	creditSvc     creditdomain.Service
	gateway       paymentdomain.Gateway
	packages      []config.PackageConfig
	maxRetries    int
	obsMetrics    *obsmetrics.Metrics
	ledgerMetrics *obsmetrics.LedgerMetrics
}

func NewService(p Params) paymentdomain.Service {
	maxRetries := p.Cfg.Credit.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	packages := make([]config.PackageConfig, len(p.Pricing.Packages))
	copy(packages, p.Pricing.Packages)

	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         clk,
		repo:          p.Repo,
		creditSvc:     p.CreditSvc,
		gateway:       p.Gateway,
		packages:      packages,
		maxRetries:    maxRetries,
		obsMetrics:    p.ObsMetrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// ProcessEvent records a verified gateway event and applies it.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.ReconcileResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:                s.genID.Generate(),
		Provider:          event.Provider,
		ProviderEventID:   event.ProviderEventID,
		EventType:         event.Type,
		ExternalReference: event.ExternalReference,
		Payload:           datatypes.JSON(event.RawPayload),
		ReceivedAt:        now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return nil, err
	}

	var result *paymentdomain.ReconcileResult
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		result, err = s.HandlePaymentSucceeded(ctx, event.ExternalReference)
	case paymentdomain.EventTypePaymentFailed:
		result, err = s.HandlePaymentFailed(ctx, event.ExternalReference, event.FailureReason)
	case paymentdomain.EventTypePaymentCanceled:
		result, err = s.HandlePaymentCanceled(ctx, event.ExternalReference)
	}
	if errors.Is(err, paymentdomain.ErrUnknownPaymentReference) {
		result, err = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeUnknownReference}, nil
	}
	if err != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type, "error")
		return nil, err
	}

	if inserted {
		if err := s.repo.MarkProcessed(ctx, s.db, record.ID, string(result.Outcome), s.clock.Now()); err != nil {
			s.log.Warn("failed to mark payment event processed",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(err),
			)
		}
	} else {
		s.log.Info("payment event redelivered",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("outcome", string(result.Outcome)),
		)
	}
	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type, string(result.Outcome))
	return result, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.ExternalReference = strings.TrimSpace(event.ExternalReference)
	if event.ExternalReference == "" {
		return paymentdomain.ErrInvalidReference
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded,
		paymentdomain.EventTypePaymentFailed,
		paymentdomain.EventTypePaymentCanceled:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	if len(event.RawPayload) == 0 {
		event.RawPayload = []byte("{}")
	}
	return nil
}

// HandlePaymentSucceeded credits the intent's package exactly once. The
// intent row lock and the status-guarded transition share one database
// transaction with the ledger write.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, externalRef string) (*paymentdomain.ReconcileResult, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var result *paymentdomain.ReconcileResult
	err := s.withRetry(ctx, obsmetrics.LedgerOperationReconcile, func() error {
		result = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			intent, err := s.repo.LockIntentByReference(ctx, tx, externalRef)
			if err != nil {
				return err
			}
			if intent == nil {
				return paymentdomain.ErrUnknownPaymentReference
			}

			switch intent.Status {
			case paymentdomain.IntentStatusSucceeded, paymentdomain.IntentStatusRefunded:
				result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeDuplicate, Intent: intent}
				return nil
			case paymentdomain.IntentStatusFailed, paymentdomain.IntentStatusCanceled:
				result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeIgnored, Intent: intent}
				return nil
			}

			now := s.clock.Now()
			ok, err := s.repo.TransitionIntent(ctx, tx, intent.ID, paymentdomain.IntentStatusPending, map[string]any{
				"status":       paymentdomain.IntentStatusSucceeded,
				"completed_at": now,
				"updated_at":   now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return creditdomain.ErrConcurrentModification
			}

			txn, err := s.creditSvc.CreditTx(ctx, tx, creditdomain.CreditRequest{
				UserID:      intent.UserID,
				Amount:      intent.CreditsToAdd,
				Type:        creditdomain.TransactionTypePurchase,
				Description: fmt.Sprintf("Credit purchase: %s", intent.PackageID),
				Metadata: creditdomain.TransactionMetadata{
					PaymentReference: intent.ExternalReference,
					PaymentIntentID:  intent.ID,
					Extra: map[string]any{
						"package_id": intent.PackageID,
						"amount":     intent.Amount,
						"currency":   intent.Currency,
					},
				},
			})
			if err != nil {
				return err
			}

			intent.Status = paymentdomain.IntentStatusSucceeded
			intent.CompletedAt = &now
			intent.UpdatedAt = now
			result = &paymentdomain.ReconcileResult{
				Outcome:     paymentdomain.OutcomeApplied,
				Intent:      intent,
				Transaction: txn,
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrUnknownPaymentReference) {
			s.log.Warn("payment succeeded for unknown reference",
				zap.String("external_reference", externalRef),
			)
		}
		return nil, err
	}

	s.logOutcome("payment succeeded", externalRef, result)
	return result, nil
}

func (s *Service) HandlePaymentFailed(ctx context.Context, externalRef string, reason string) (*paymentdomain.ReconcileResult, error) {
	reason = strings.TrimSpace(reason)
	return s.closeIntent(ctx, externalRef, paymentdomain.IntentStatusFailed, func(now time.Time) map[string]any {
		return map[string]any{
			"status":         paymentdomain.IntentStatusFailed,
			"failed_at":      now,
			"failure_reason": reason,
			"updated_at":     now,
		}
	})
}

func (s *Service) HandlePaymentCanceled(ctx context.Context, externalRef string) (*paymentdomain.ReconcileResult, error) {
	return s.closeIntent(ctx, externalRef, paymentdomain.IntentStatusCanceled, func(now time.Time) map[string]any {
		return map[string]any{
			"status":      paymentdomain.IntentStatusCanceled,
			"canceled_at": now,
			"updated_at":  now,
		}
	})
}

// closeIntent moves a pending intent to a terminal non-paying state. It
// never touches the ledger.
func (s *Service) closeIntent(
	ctx context.Context,
	externalRef string,
	target paymentdomain.IntentStatus,
	updates func(now time.Time) map[string]any,
) (*paymentdomain.ReconcileResult, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var result *paymentdomain.ReconcileResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intent, err := s.repo.LockIntentByReference(ctx, tx, externalRef)
		if err != nil {
			return err
		}
		if intent == nil {
			return paymentdomain.ErrUnknownPaymentReference
		}
		if intent.Status == target {
			result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeDuplicate, Intent: intent}
			return nil
		}
		if intent.Status != paymentdomain.IntentStatusPending {
			result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeIgnored, Intent: intent}
			return nil
		}

		ok, err := s.repo.TransitionIntent(ctx, tx, intent.ID, paymentdomain.IntentStatusPending, updates(s.clock.Now()))
		if err != nil {
			return err
		}
		if !ok {
			result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeIgnored, Intent: intent}
			return nil
		}
		intent.Status = target
		result = &paymentdomain.ReconcileResult{Outcome: paymentdomain.OutcomeApplied, Intent: intent}
		return nil
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrUnknownPaymentReference) {
			s.log.Warn("payment event for unknown reference",
				zap.String("external_reference", externalRef),
				zap.String("status", string(target)),
			)
		}
		return nil, err
	}

	s.logOutcome("payment "+string(target), externalRef, result)
	return result, nil
}

func (s *Service) logOutcome(msg string, externalRef string, result *paymentdomain.ReconcileResult) {
	fields := []zap.Field{
		zap.String("external_reference", externalRef),
		zap.String("outcome", string(result.Outcome)),
	}
	if result.Intent != nil {
		fields = append(fields,
			zap.String("intent_id", result.Intent.ID.String()),
			zap.String("intent_status", string(result.Intent.Status)),
		)
	}
	if result.Outcome == paymentdomain.OutcomeIgnored {
		s.log.Warn(msg+" ignored for closed intent", fields...)
		return
	}
	s.log.Info(msg, fields...)
}

// withRetry reruns fn while the ledger reports a version conflict.
func (s *Service) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.ledgerMetrics.IncRetry(operation)
			s.obsMetrics.RecordLedgerConflict(ctx, operation)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * conflictBackoffUnit):
			}
		}
		err = fn()
		if !errors.Is(err, creditdomain.ErrConcurrentModification) && !pkgdb.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Service) ListPurchases(ctx context.Context, userID snowflake.ID, limit int) ([]paymentdomain.PaymentIntent, error) {
	if userID == 0 {
		return nil, paymentdomain.ErrInvalidUser
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListIntents(ctx, s.db, userID, limit)
}

func (s *Service) GetPurchase(ctx context.Context, userID, intentID snowflake.ID) (*paymentdomain.PaymentIntent, error) {
	if userID == 0 {
		return nil, paymentdomain.ErrInvalidUser
	}
	intent, err := s.repo.FindIntent(ctx, s.db, intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil || intent.UserID != userID {
		return nil, paymentdomain.ErrIntentNotFound
	}
	return intent, nil
}
