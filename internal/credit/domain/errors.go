package domain

import "errors"

var (
	ErrInvalidUser            = errors.New("invalid_user")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidProvider        = errors.New("invalid_provider")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInsufficientCredits    = errors.New("insufficient_credits")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrLedgerIntegrity        = errors.New("ledger_integrity_violation")
)
