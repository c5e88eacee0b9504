package points

import "errors"

// Domain-level error values returned by ledger primitives.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidLedger       = errors.New("invalid ledger")
	ErrInvalidAuditEntry   = errors.New("invalid audit entry")
)
