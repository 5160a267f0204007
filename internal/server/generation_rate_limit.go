package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/thinktestai/thinktest/internal/generation/domain"
	"github.com/thinktestai/thinktest/internal/observability/logger"
	obsmetrics "github.com/thinktestai/thinktest/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	generationRequestKey = "generation_request"

	rateLimitReasonUserRate    = "user_rate"
	rateLimitReasonConcurrency = "in_flight"
)

// GenerationRateLimit binds the request body, then applies the per-user token
// bucket and the single in-flight generation lock. Both are skipped when
// redis is not configured.
func (s *Server) GenerationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createGenerationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		c.Set(generationRequestKey, req)
		c.Set("ai_provider", strings.TrimSpace(req.Provider))

		endpoint := normalizeRateLimitEndpoint(c)
		if !s.genLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID := userIDFromContext(c).String()

		result, err := s.genLimiter.Allow(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("generation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			denyGeneration(c, endpoint, rateLimitReasonUserRate, generationdomain.ErrRateLimited, s.obsMetrics)
			return
		}

		lockToken, acquired, err := s.genLimiter.TryLock(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("generation lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !acquired {
			denyGeneration(c, endpoint, rateLimitReasonConcurrency, generationdomain.ErrGenerationInProgress, s.obsMetrics)
			return
		}
		defer func() {
			if err := s.genLimiter.Release(context.WithoutCancel(ctx), userID, lockToken); err != nil {
				logger.FromContext(ctx).Warn("generation unlock failed", zap.Error(err))
			}
		}()

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func denyGeneration(c *gin.Context, endpoint, reason string, err error, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("generation rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, err)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
