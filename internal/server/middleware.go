package server

import (
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/thinktestai/thinktest/internal/authorization"
	obscontext "github.com/thinktestai/thinktest/internal/observability/context"
)

const (
	// HeaderUserID carries the caller resolved by the upstream auth layer.
	HeaderUserID       = "X-User-ID"
	headerAdminToken   = "X-Admin-Token"
	contextUserIDKey   = "user_id"
	contextOperatorKey = "operator"
)

// UserRequired trusts the upstream gateway's user header; this service does
// not authenticate.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

// AdminRequired maps the presented token to an operator identity. What the
// operator may do is decided per route by authorize.
func (s *Server) AdminRequired() gin.HandlerFunc {
	tokens := s.operatorTokens()
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(headerAdminToken))
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}

		operator := ""
		for candidate, name := range tokens {
			if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
				operator = name
			}
		}
		if token == "" || operator == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOperatorKey, operator)
		c.Request = c.Request.WithContext(obscontext.WithOperator(c.Request.Context(), operator))
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := c.GetString(contextOperatorKey)
		if err := s.authzSvc.Authorize(c.Request.Context(), operator, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// ClientInfo stores the caller's address and agent for audit records.
func (s *Server) ClientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithClient(c.Request.Context(), obscontext.Client{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
		c.Next()
	}
}

func (s *Server) operatorTokens() map[string]string {
	tokens := map[string]string{}
	if token := strings.TrimSpace(s.cfg.SupportAPIToken); token != "" {
		tokens[token] = authorization.OperatorSupport
	}
	// Admin wins if both tokens are configured to the same value.
	if token := strings.TrimSpace(s.cfg.AdminAPIToken); token != "" {
		tokens[token] = authorization.OperatorAdmin
	}
	return tokens
}

func userIDFromContext(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0
	}
	userID, _ := value.(snowflake.ID)
	return userID
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
