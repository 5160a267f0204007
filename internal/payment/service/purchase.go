package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	pkgdb "github.com/thinktestai/thinktest/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Packages() []config.PackageConfig {
	out := make([]config.PackageConfig, len(s.packages))
	copy(out, s.packages)
	return out
}

func (s *Service) findPackage(packageID string) (config.PackageConfig, bool) {
	packageID = strings.ToLower(strings.TrimSpace(packageID))
	for _, pkg := range s.packages {
		if pkg.ID == packageID {
			return pkg, true
		}
	}
	return config.PackageConfig{}, false
}

// StartPurchase creates a gateway intent for a credit package and stores it
// as pending. Credits are only granted when the gateway confirms payment.
func (s *Service) StartPurchase(ctx context.Context, userID snowflake.ID, packageID string) (*paymentdomain.PurchaseResult, error) {
	if userID == 0 {
		return nil, paymentdomain.ErrInvalidUser
	}
	pkg, ok := s.findPackage(packageID)
	if !ok {
		return nil, paymentdomain.ErrUnknownPackage
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	intentID := s.genID.Generate()
	created, err := s.gateway.CreateIntent(ctx, paymentdomain.CreateIntentRequest{
		Amount:   pkg.PriceMinor,
		Currency: pkg.Currency,
		Metadata: map[string]string{
			"user_id":    userID.String(),
			"package_id": pkg.ID,
			"credits":    pkg.Credits.String(),
			"intent_id":  intentID.String(),
		},
	})
	if err != nil {
		s.log.Error("failed to create gateway intent",
			zap.String("user_id", userID.String()),
			zap.String("package_id", pkg.ID),
			zap.Error(err),
		)
		return nil, err
	}
	if created == nil || strings.TrimSpace(created.ExternalReference) == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	now := s.clock.Now()
	intent := paymentdomain.PaymentIntent{
		ID:                intentID,
		UserID:            userID,
		Provider:          s.gateway.Provider(),
		ExternalReference: created.ExternalReference,
		PackageID:         pkg.ID,
		Status:            paymentdomain.IntentStatusPending,
		Amount:            pkg.PriceMinor,
		Currency:          pkg.Currency,
		CreditsToAdd:      pkg.Credits,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertIntent(ctx, s.db, &intent); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			s.log.Error("gateway returned a reference already bound to an intent",
				zap.String("external_reference", created.ExternalReference),
			)
			return nil, fmt.Errorf("%w: duplicate external reference", paymentdomain.ErrInvalidReference)
		}
		return nil, err
	}

	s.log.Info("purchase started",
		zap.String("user_id", userID.String()),
		zap.String("intent_id", intentID.String()),
		zap.String("package_id", pkg.ID),
		zap.String("external_reference", created.ExternalReference),
	)

	return &paymentdomain.PurchaseResult{
		IntentID:          intentID,
		ExternalReference: created.ExternalReference,
		ClientSecret:      created.ClientSecret,
		Amount:            pkg.PriceMinor,
		Currency:          pkg.Currency,
		Credits:           pkg.Credits,
	}, nil
}

// RefundPurchase takes back the credits of a succeeded purchase and refunds
// the payment. The debit and the refunded status commit before the gateway is
// called; a failed gateway refund is reversed with a compensating credit.
func (s *Service) RefundPurchase(ctx context.Context, intentID snowflake.ID, reason string) (*paymentdomain.RefundResult, error) {
	if intentID == 0 {
		return nil, paymentdomain.ErrIntentNotFound
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	reason = strings.TrimSpace(reason)

	var result *paymentdomain.RefundResult
	err := s.withRetry(ctx, obsmetrics.LedgerOperationRefund, func() error {
		result = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			intent, err := s.repo.LockIntent(ctx, tx, intentID)
			if err != nil {
				return err
			}
			if intent == nil {
				return paymentdomain.ErrIntentNotFound
			}
			if intent.Status != paymentdomain.IntentStatusSucceeded {
				return paymentdomain.ErrInvalidIntentState
			}

			description := "Refund of credit purchase: " + intent.PackageID
			if reason != "" {
				description += " (" + reason + ")"
			}
			txn, err := s.creditSvc.AdjustTx(ctx, tx, creditdomain.AdjustRequest{
				UserID:      intent.UserID,
				Amount:      intent.CreditsToAdd.Neg(),
				Description: description,
				Metadata: creditdomain.TransactionMetadata{
					PaymentReference: intent.ExternalReference,
					PaymentIntentID:  intent.ID,
					Extra:            map[string]any{"refund_reason": reason},
				},
			})
			if err != nil {
				return err
			}

			now := s.clock.Now()
			ok, err := s.repo.TransitionIntent(ctx, tx, intent.ID, paymentdomain.IntentStatusSucceeded, map[string]any{
				"status":      paymentdomain.IntentStatusRefunded,
				"refunded_at": now,
				"updated_at":  now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return creditdomain.ErrConcurrentModification
			}

			intent.Status = paymentdomain.IntentStatusRefunded
			intent.RefundedAt = &now
			intent.UpdatedAt = now
			result = &paymentdomain.RefundResult{Intent: intent, Transaction: txn}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, creditdomain.ErrInsufficientCredits) {
			s.log.Info("refund rejected, credits already spent", zap.String("intent_id", intentID.String()))
		}
		return nil, err
	}

	intent := result.Intent
	if err := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
		ExternalReference: intent.ExternalReference,
		Amount:            intent.Amount,
		Reason:            reason,
		IdempotencyKey:    refundIdempotencyKey(intent.ID),
	}); err != nil {
		s.log.Error("gateway refund failed, reversing credit debit",
			zap.String("intent_id", intentID.String()),
			zap.Error(err),
		)
		if revertErr := s.revertRefund(ctx, intent.ID); revertErr != nil {
			s.log.Error("failed to reverse refund debit; intent left refunded without a gateway refund",
				zap.String("intent_id", intentID.String()),
				zap.Error(revertErr),
			)
			return nil, errors.Join(err, revertErr)
		}
		return nil, err
	}

	s.log.Info("purchase refunded",
		zap.String("intent_id", intentID.String()),
		zap.String("user_id", intent.UserID.String()),
	)
	return result, nil
}

func refundIdempotencyKey(intentID snowflake.ID) string {
	return "refund-" + intentID.String()
}

// revertRefund credits back a refund debit whose gateway refund failed and
// returns the intent to succeeded so the refund can be retried.
func (s *Service) revertRefund(ctx context.Context, intentID snowflake.ID) error {
	return s.withRetry(ctx, obsmetrics.LedgerOperationRefund, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			intent, err := s.repo.LockIntent(ctx, tx, intentID)
			if err != nil {
				return err
			}
			if intent == nil {
				return paymentdomain.ErrIntentNotFound
			}
			if intent.Status != paymentdomain.IntentStatusRefunded {
				return paymentdomain.ErrInvalidIntentState
			}

			if _, err := s.creditSvc.AdjustTx(ctx, tx, creditdomain.AdjustRequest{
				UserID:      intent.UserID,
				Amount:      intent.CreditsToAdd,
				Description: "Refund reversed, gateway refund failed: " + intent.PackageID,
				Metadata: creditdomain.TransactionMetadata{
					PaymentReference: intent.ExternalReference,
					PaymentIntentID:  intent.ID,
					Extra:            map[string]any{"refund_reversed": true},
				},
			}); err != nil {
				return err
			}

			ok, err := s.repo.TransitionIntent(ctx, tx, intent.ID, paymentdomain.IntentStatusRefunded, map[string]any{
				"status":      paymentdomain.IntentStatusSucceeded,
				"refunded_at": nil,
				"updated_at":  s.clock.Now(),
			})
			if err != nil {
				return err
			}
			if !ok {
				return creditdomain.ErrConcurrentModification
			}
			return nil
		})
	})
}
