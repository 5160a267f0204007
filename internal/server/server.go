package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/thinktestai/thinktest/internal/audit/domain"
	"github.com/thinktestai/thinktest/internal/authorization"
	"github.com/thinktestai/thinktest/internal/config"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	generationdomain "github.com/thinktestai/thinktest/internal/generation/domain"
	obslogger "github.com/thinktestai/thinktest/internal/observability/logger"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	obstracing "github.com/thinktestai/thinktest/internal/observability/tracing"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	"github.com/thinktestai/thinktest/internal/providercost"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
	"github.com/thinktestai/thinktest/internal/ratelimit"
	"github.com/thinktestai/thinktest/internal/receipt"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           cfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	creditSvc     creditdomain.Service
	costs         *providercost.Table
	paymentSvc    paymentdomain.Service
	webhookSvc    paymentdomain.WebhookService
	generationSvc generationdomain.Service
	keySvc        providerkeydomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	receipts      receipt.Generator
	genLimiter    *ratelimit.GenerationLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	CreditSvc     creditdomain.Service
	Costs         *providercost.Table
	PaymentSvc    paymentdomain.Service
	WebhookSvc    paymentdomain.WebhookService
	GenerationSvc generationdomain.Service
	KeySvc        providerkeydomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service `optional:"true"`
	Receipts      receipt.Generator
	GenLimiter    *ratelimit.GenerationLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		creditSvc:     p.CreditSvc,
		costs:         p.Costs,
		paymentSvc:    p.PaymentSvc,
		webhookSvc:    p.WebhookSvc,
		generationSvc: p.GenerationSvc,
		keySvc:        p.KeySvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		receipts:      p.Receipts,
		genLimiter:    p.GenLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ClientInfo(), s.UserRequired())

	api.GET("/credits/balance", s.GetBalance)
	api.GET("/credits/status", s.GetCreditStatus)
	api.GET("/credits/transactions", s.ListTransactions)
	api.GET("/credits/costs", s.ListCosts)
	api.GET("/credits/packages", s.ListPackages)
	api.POST("/credits/purchases", s.StartPurchase)
	api.GET("/credits/purchases", s.ListPurchases)
	api.GET("/credits/purchases/:id/receipt", s.GetPurchaseReceipt)

	api.GET("/generations/models", s.ListModels)
	api.POST("/generations", s.GenerationRateLimit(), s.CreateGeneration)

	api.GET("/provider-keys", s.ListProviderKeys)
	api.PUT("/provider-keys/:vendor", s.SetProviderKey)
	api.DELETE("/provider-keys/:vendor", s.DeleteProviderKey)
}

func (s *Server) registerAdminRoutes() {
	if len(s.operatorTokens()) == 0 {
		s.log.Info("admin routes disabled: no operator token configured")
		return
	}

	admin := s.engine.Group("/admin", s.ClientInfo(), s.AdminRequired())

	admin.POST("/credits/adjustments",
		s.authorize(authorization.ObjectCredits, authorization.ActionCreditsAdjust), s.AdjustCredits)
	admin.GET("/users/:id/credits",
		s.authorize(authorization.ObjectCredits, authorization.ActionCreditsView), s.GetUserCreditStatus)
	admin.GET("/users/:id/ledger/verify",
		s.authorize(authorization.ObjectLedger, authorization.ActionLedgerVerify), s.VerifyLedger)
	admin.POST("/purchases/:id/refund",
		s.authorize(authorization.ObjectPurchase, authorization.ActionPurchaseRefund), s.RefundPurchase)
	admin.GET("/audit-logs",
		s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
