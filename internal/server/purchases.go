package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type startPurchaseRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

func (s *Server) StartPurchase(c *gin.Context) {
	var req startPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.StartPurchase(c.Request.Context(), userIDFromContext(c), strings.TrimSpace(req.PackageID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPurchases(c *gin.Context) {
	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.paymentSvc.ListPurchases(c.Request.Context(), userIDFromContext(c), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
