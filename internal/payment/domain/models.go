package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	"gorm.io/datatypes"
)

type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusCanceled  IntentStatus = "canceled"
	IntentStatusRefunded  IntentStatus = "refunded"
)

// PaymentIntent tracks one external payment from creation to settlement.
// A pending intent moves to exactly one terminal state; only succeeded
// intents may later become refunded.
type PaymentIntent struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Provider          string          `json:"provider" gorm:"type:varchar(64);not null"`
	ExternalReference string          `json:"external_reference" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_intents_reference"`
	PackageID         string          `json:"package_id" gorm:"type:varchar(64);not null"`
	Status            IntentStatus    `json:"status" gorm:"type:varchar(32);not null"`
	Amount            int64           `json:"amount" gorm:"not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(8);not null"`
	CreditsToAdd      decimal.Decimal `json:"credits_to_add" gorm:"type:decimal(20,4);not null"`
	FailureReason     string          `json:"failure_reason,omitempty" gorm:"type:text"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
	CanceledAt        *time.Time      `json:"canceled_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// EventRecord is the audit trail of verified gateway deliveries.
type EventRecord struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider          string         `json:"provider" gorm:"type:varchar(64);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID   string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType         string         `json:"event_type" gorm:"type:varchar(64);not null"`
	ExternalReference string         `json:"external_reference" gorm:"type:varchar(255);not null;index"`
	Payload           datatypes.JSON `json:"payload" gorm:"not null"`
	Outcome           string         `json:"outcome" gorm:"type:varchar(32)"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt       *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentCanceled  = "payment.canceled"
)

// PaymentEvent is the canonical payment event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	Type              string
	ExternalReference string
	Amount            int64
	Currency          string
	FailureReason     string
	OccurredAt        time.Time
	RawPayload        []byte
}

type ReconcileOutcome string

const (
	OutcomeApplied          ReconcileOutcome = "applied"
	OutcomeDuplicate        ReconcileOutcome = "duplicate"
	OutcomeIgnored          ReconcileOutcome = "ignored"
	OutcomeUnknownReference ReconcileOutcome = "unknown_reference"
)

// ReconcileResult reports what a gateway event did. Transaction is set only
// when a credit was applied.
type ReconcileResult struct {
	Outcome     ReconcileOutcome          `json:"outcome"`
	Intent      *PaymentIntent            `json:"intent,omitempty"`
	Transaction *creditdomain.Transaction `json:"transaction,omitempty"`
}

// PurchaseResult is returned to the client that started a purchase.
// ClientSecret is opaque and only used by the gateway's client SDK.
type PurchaseResult struct {
	IntentID          snowflake.ID    `json:"intent_id"`
	ExternalReference string          `json:"external_reference"`
	ClientSecret      string          `json:"client_secret"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	Credits           decimal.Decimal `json:"credits"`
}

// RefundResult is the outcome of an admin refund.
type RefundResult struct {
	Intent      *PaymentIntent            `json:"intent"`
	Transaction *creditdomain.Transaction `json:"transaction"`
}
