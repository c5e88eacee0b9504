package points

import (
	"fmt"
	"time"
)

// Amount is an integer points quantity. Ledger balances and audit deltas
// are expressed in whole points.
type Amount int64

// Int64 returns the raw value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// LedgerStatus defines the account lifecycle.
type LedgerStatus string

const (
	LedgerActive    LedgerStatus = "ACTIVE"
	LedgerExpired   LedgerStatus = "EXPIRED"
	LedgerSuspended LedgerStatus = "SUSPENDED"
)

// Ledger is a member's points account. Balances move only through the
// primitives defined in ledger.go; callers never write the fields directly.
type Ledger struct {
	LedgerID      string
	MemberID      string
	Remaining     Amount
	Locked        Amount
	Total         Amount
	PurchaseCents int64
	Status        LedgerStatus
	Expiry        *time.Time
	CreatedAt     time.Time
}

// NewLedger builds an active ledger for a member.
func NewLedger(ledgerID string, memberID string, createdAt time.Time) (Ledger, error) {
	if ledgerID == "" {
		return Ledger{}, fmt.Errorf("%w: empty ledger id", ErrInvalidLedger)
	}
	if memberID == "" {
		return Ledger{}, fmt.Errorf("%w: empty member id", ErrInvalidLedger)
	}
	return Ledger{
		LedgerID:  ledgerID,
		MemberID:  memberID,
		Status:    LedgerActive,
		CreatedAt: createdAt,
	}, nil
}

func validateAmount(amount Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return nil
}
