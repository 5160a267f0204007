package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/thinktestai/thinktest/internal/audit/domain"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	"go.uber.org/zap"
)

type adjustCreditsRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type refundPurchaseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) AdjustCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID <= 0 {
		AbortWithError(c, creditdomain.ErrInvalidUser)
		return
	}

	txn, err := s.creditSvc.Adjust(c.Request.Context(), creditdomain.AdjustRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		Metadata:    creditdomain.TransactionMetadata{Extra: map[string]any{"source": "admin"}},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("credits adjusted",
		zap.String("user_id", userID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("transaction_id", txn.ID.String()),
	)
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		Action:     auditdomain.ActionCreditsAdjusted,
		TargetType: "user",
		TargetID:   userID.String(),
		Metadata: map[string]any{
			"amount":         req.Amount.String(),
			"balance_after":  txn.BalanceAfter.String(),
			"transaction_id": txn.ID.String(),
			"description":    txn.Description,
		},
	})
	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) GetUserCreditStatus(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.creditSvc.GetStatus(c.Request.Context(), userID, 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// VerifyLedger replays a user's history. An integrity violation is a
// finding, not a request failure.
func (s *Server) VerifyLedger(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	err = s.creditSvc.VerifyHistory(ctx, userID)
	if err != nil && !errors.Is(err, creditdomain.ErrLedgerIntegrity) {
		AbortWithError(c, err)
		return
	}

	entry := auditdomain.Entry{
		Action:     auditdomain.ActionLedgerVerified,
		TargetType: "user",
		TargetID:   userID.String(),
		Metadata:   map[string]any{"ok": err == nil},
	}
	if err != nil {
		s.log.Error("ledger integrity violation",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		entry.Metadata["error"] = err.Error()
		s.recordAudit(ctx, entry)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"ok": false, "error": err.Error()}})
		return
	}
	s.recordAudit(ctx, entry)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"ok": true}})
}

func (s *Server) RefundPurchase(c *gin.Context) {
	intentID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req refundPurchaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	reason := strings.TrimSpace(req.Reason)
	result, err := s.paymentSvc.RefundPurchase(c.Request.Context(), intentID, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c.Request.Context(), auditdomain.Entry{
		Action:     auditdomain.ActionPurchaseRefunded,
		TargetType: "purchase",
		TargetID:   intentID.String(),
		Metadata:   map[string]any{"reason": reason},
	})
	c.JSON(http.StatusOK, gin.H{"data": result})
}
