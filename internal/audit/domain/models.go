package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeOperator ActorType = "operator"
	ActorTypeUser     ActorType = "user"
	ActorTypeSystem   ActorType = "system"
)

const (
	ActionCreditsAdjusted     = "credits.adjusted"
	ActionPurchaseRefunded    = "purchase.refunded"
	ActionProviderKeySet      = "provider_key.set"
	ActionProviderKeyDeleted  = "provider_key.deleted"
	ActionLedgerVerified      = "ledger.verified"
	ActionAuthorizationDenied = "authorization.denied"
)

// AuditLog is an append-only record of a privileged or security-relevant action.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:varchar(32);not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:varchar(64)"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index:ix_audit_logs_action"`
	TargetType string            `json:"target_type" gorm:"type:varchar(64);not null;index:ix_audit_logs_target,priority:1"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(64);index:ix_audit_logs_target,priority:2"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:varchar(64)"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// ListFilter selects a newest-first page. Limit includes the lookahead row.
type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	BeforeID   snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}
