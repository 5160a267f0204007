package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thinktestai/thinktest/internal/authorization"
	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
	generationdomain "github.com/thinktestai/thinktest/internal/generation/domain"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	providerkeydomain "github.com/thinktestai/thinktest/internal/providerkey/domain"
	"github.com/thinktestai/thinktest/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: generationdomain.UserMessage(err),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "operator is not allowed to perform this action",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_webhook",
			Message: "webhook could not be verified",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrInvalidIntentState):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "the purchase is not in a valid state for this operation",
		}
	case errors.Is(err, creditdomain.ErrConcurrentModification):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "the account was modified concurrently, please retry",
		}
	case errors.Is(err, generationdomain.ErrGenerationInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "generation_in_progress",
			Message: generationdomain.UserMessage(err),
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, generationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: generationdomain.UserMessage(generationdomain.ErrRateLimited),
		}
	case errors.Is(err, generationdomain.ErrProviderFailed),
		errors.Is(err, generationdomain.ErrEmptyCompletion):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: generationdomain.UserMessage(err),
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidReference):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, generationdomain.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "provider_unavailable",
			Message: generationdomain.UserMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, providerkeydomain.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and the domain error code
// for the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	creditdomain.ErrInvalidUser,
	creditdomain.ErrInvalidAmount,
	creditdomain.ErrInvalidProvider,
	creditdomain.ErrInvalidTransactionType,
	paymentdomain.ErrInvalidUser,
	paymentdomain.ErrUnknownPackage,
	generationdomain.ErrInvalidRequest,
	generationdomain.ErrUnsupportedProvider,
	providerkeydomain.ErrInvalidUser,
	providerkeydomain.ErrInvalidVendor,
	providerkeydomain.ErrInvalidKey,
}

func isValidationError(err error) bool {
	return matchValidationError(err) != nil
}

func matchValidationError(err error) error {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrIntentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, providerkeydomain.ErrNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if target := matchValidationError(err); target != nil {
		return target.Error()
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "unsupported_provider" || code == "unknown_package" {
		return strings.SplitN(code, "_", 2)[1]
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unsupported_provider":
		return generationdomain.UserMessage(generationdomain.ErrUnsupportedProvider)
	case "unknown_package":
		return "unknown credit package"
	default:
		return "invalid value"
	}
}
