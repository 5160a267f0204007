package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/thinktestai/thinktest/internal/generation/domain"
)

type createGenerationRequest struct {
	Provider   string `json:"provider" binding:"required"`
	Model      string `json:"model"`
	Framework  string `json:"framework"`
	PluginName string `json:"plugin_name"`
	Code       string `json:"code" binding:"required"`
}

func (s *Server) CreateGeneration(c *gin.Context) {
	req, ok := c.MustGet(generationRequestKey).(createGenerationRequest)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.generationSvc.Generate(c.Request.Context(), generationdomain.Request{
		UserID:     userIDFromContext(c),
		Provider:   strings.TrimSpace(req.Provider),
		Model:      strings.TrimSpace(req.Model),
		Framework:  strings.TrimSpace(req.Framework),
		PluginName: strings.TrimSpace(req.PluginName),
		Code:       req.Code,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.generationSvc.Models(c.Request.Context())})
}
