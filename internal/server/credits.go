package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	"github.com/thinktestai/thinktest/pkg/db/pagination"
)

func (s *Server) GetBalance(c *gin.Context) {
	userID := userIDFromContext(c)
	balance, err := s.creditSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id": userID.String(),
		"balance": balance,
	}})
}

func (s *Server) GetCreditStatus(c *gin.Context) {
	var query struct {
		Recent int `form:"recent"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status, err := s.creditSvc.GetStatus(c.Request.Context(), userIDFromContext(c), query.Recent)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Type string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := creditdomain.TransactionFilter{
		UserID: userIDFromContext(c),
		Type:   creditdomain.TransactionType(strings.ToLower(strings.TrimSpace(query.Type))),
		// One extra row tells whether another page exists.
		Limit: query.PageSize + 1,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		AbortWithError(c, newValidationError("type", "invalid_type", "invalid type"))
		return
	}
	if query.PageToken != "" {
		cursor, err := pagination.DecodeCursor(query.PageToken)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			AbortWithError(c, pagination.ErrInvalidPageToken)
			return
		}
		filter.BeforeID = beforeID
	}

	items, err := s.creditSvc.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, info := pagination.Page(items, query.PageSize, func(txn creditdomain.Transaction) string {
		return txn.ID.String()
	})
	c.JSON(http.StatusOK, gin.H{"data": page, "page_info": info})
}

func (s *Server) ListCosts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"providers":    s.costs.Entries(),
		"default_cost": s.costs.DefaultCost(),
	}})
}

func (s *Server) ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.paymentSvc.Packages()})
}
