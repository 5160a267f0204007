package domain

import "errors"

var (
	ErrInvalidUser             = errors.New("invalid_user")
	ErrInvalidProvider         = errors.New("invalid_provider")
	ErrProviderNotFound        = errors.New("provider_not_found")
	ErrInvalidConfig           = errors.New("invalid_config")
	ErrInvalidSignature        = errors.New("invalid_signature")
	ErrInvalidPayload          = errors.New("invalid_payload")
	ErrInvalidEvent            = errors.New("invalid_event")
	ErrEventIgnored            = errors.New("event_ignored")
	ErrInvalidReference        = errors.New("invalid_payment_reference")
	ErrUnknownPaymentReference = errors.New("unknown_payment_reference")
	ErrUnknownPackage          = errors.New("unknown_package")
	ErrIntentNotFound          = errors.New("payment_intent_not_found")
	ErrInvalidIntentState      = errors.New("invalid_payment_intent_state")
	ErrGatewayUnavailable      = errors.New("payment_gateway_unavailable")
)
