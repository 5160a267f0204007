package domain

import (
	"errors"

	creditdomain "github.com/thinktestai/thinktest/internal/credit/domain"
)

// UserMessage turns a generation error into text safe to show the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return "You don't have enough credits for this generation. Buy a credit package or add your own API key for this provider."
	case errors.Is(err, ErrUnsupportedProvider):
		return "The selected AI provider is not supported."
	case errors.Is(err, ErrProviderNotConfigured):
		return "The selected AI provider is not available right now. Add your own API key or pick another provider."
	case errors.Is(err, ErrProviderFailed), errors.Is(err, ErrEmptyCompletion):
		return "The AI provider could not generate tests. You were not charged; please try again."
	case errors.Is(err, ErrInvalidRequest):
		return "The request is missing the plugin code or provider, or picks a model that needs your own API key."
	case errors.Is(err, ErrRateLimited):
		return "Too many generation requests. Please wait a moment and try again."
	case errors.Is(err, ErrGenerationInProgress):
		return "A generation is already running for your account."
	default:
		return "Something went wrong while generating tests. Please try again."
	}
}
