package domain

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrUnsupportedProvider   = errors.New("unsupported_provider")
	ErrProviderNotConfigured = errors.New("provider_not_configured")
	ErrProviderFailed        = errors.New("provider_failed")
	ErrEmptyCompletion       = errors.New("empty_completion")
	ErrRateLimited           = errors.New("rate_limited")
	ErrGenerationInProgress  = errors.New("generation_in_progress")
)
