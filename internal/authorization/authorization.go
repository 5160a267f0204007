// Package authorization decides which operator roles may perform which
// administrative actions. Policies live in the casbin_rule table.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/thinktestai/thinktest/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

const (
	OperatorAdmin   = "operator:admin"
	OperatorSupport = "operator:support"

	RoleAdmin   = "role:admin"
	RoleSupport = "role:support"
)

const (
	ObjectCredits  = "credits"
	ObjectLedger   = "ledger"
	ObjectPurchase = "purchase"
	ObjectAuditLog = "audit_log"
)

const (
	ActionCreditsView    = "credits.view"
	ActionCreditsAdjust  = "credits.adjust"
	ActionLedgerVerify   = "ledger.verify"
	ActionPurchaseRefund = "purchase.refund"
	ActionAuditLogView   = "audit_log.view"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	// Authorize returns ErrForbidden unless operator may perform action on object.
	Authorize(ctx context.Context, operator string, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, operator string, object string, action string) error {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(operator, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("operator action denied",
			zap.String("operator", operator),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, operator, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, operator string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOperator,
		ActorID:    operator,
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Support is read-only.
		{RoleSupport, ObjectCredits, ActionCreditsView},
		{RoleSupport, ObjectLedger, ActionLedgerVerify},
		{RoleSupport, ObjectAuditLog, ActionAuditLogView},

		{RoleAdmin, ObjectCredits, ActionCreditsView},
		{RoleAdmin, ObjectCredits, ActionCreditsAdjust},
		{RoleAdmin, ObjectLedger, ActionLedgerVerify},
		{RoleAdmin, ObjectPurchase, ActionPurchaseRefund},
		{RoleAdmin, ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{OperatorAdmin, RoleAdmin},
		{OperatorSupport, RoleSupport},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
