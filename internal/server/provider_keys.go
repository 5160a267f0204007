package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/thinktestai/thinktest/internal/audit/domain"
)

type setProviderKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

func (s *Server) ListProviderKeys(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := s.keySvc.ListKeys(ctx, userIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"catalog": s.keySvc.ListCatalog(ctx),
		"keys":    keys,
	}})
}

func (s *Server) SetProviderKey(c *gin.Context) {
	var req setProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	vendor := strings.TrimSpace(c.Param("vendor"))
	summary, err := s.keySvc.SetKey(ctx, userIDFromContext(c), vendor, req.APIKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionProviderKeySet,
		TargetType: "provider_key",
		TargetID:   summary.Vendor,
		Metadata:   map[string]any{"api_key": req.APIKey},
	})
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) DeleteProviderKey(c *gin.Context) {
	ctx := c.Request.Context()
	vendor := strings.TrimSpace(c.Param("vendor"))
	if err := s.keySvc.DeleteKey(ctx, userIDFromContext(c), vendor); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionProviderKeyDeleted,
		TargetType: "provider_key",
		TargetID:   vendor,
	})
	c.Status(http.StatusNoContent)
}
