package points

import (
	"fmt"
	"time"
)

// AuditKind labels the ledger mutation an audit entry records.
type AuditKind string

const (
	AuditStartingGrant         AuditKind = "STARTING_GRANT"
	AuditPointPurchase         AuditKind = "POINT_PURCHASE"
	AuditBookingConfirmed      AuditKind = "BOOKING_CONFIRMED"
	AuditBookingLocked         AuditKind = "BOOKING_LOCKED"
	AuditCancellationRefund    AuditKind = "CANCELLATION_REFUND"
	AuditUnlockedCancellation  AuditKind = "UNLOCKED_CANCELLATION"
	AuditWaitlistConfirmed     AuditKind = "WAITLIST_CONFIRMED"
	AuditLockedTimeoutRelease  AuditKind = "LOCKED_TIMEOUT_RELEASE"
	AuditNoShow                AuditKind = "NO_SHOW"
	AuditUnlockedFinalized     AuditKind = "UNLOCKED_FINALIZED"
	AuditAdminAdjustAdd        AuditKind = "ADMIN_ADJUST_ADD"
	AuditAdminAdjustDeduct     AuditKind = "ADMIN_ADJUST_DEDUCT"
	AuditAdminWaitlistCleanup  AuditKind = "ADMIN_WAITLIST_CLEANUP"
	AuditTransferLocked        AuditKind = "TRANSFER_LOCKED"
	AuditTransferConsumed      AuditKind = "TRANSFER_COMPLETED_CONSUMED"
	AuditTransferReceived      AuditKind = "TRANSFER_RECEIVED"
	AuditTransferCancelled     AuditKind = "TRANSFER_CANCELLED_REFUND"
	AuditCapacityCancelled     AuditKind = "CAPACITY_CANCEL_REFUND"
)

// AuditEntry is one immutable line in the audit log. Every ledger mutation
// appends exactly one entry inside the same atomic unit. Amount carries the
// sign of the movement; state-only markers (no-show, cleanup) use zero.
type AuditEntry struct {
	EntryID   string
	LedgerID  string
	Amount    Amount
	Kind      AuditKind
	RelatedID string
	Notes     string
	CreatedAt time.Time
}

// NewAuditEntry validates the identifying fields of an audit entry.
func NewAuditEntry(entryID string, ledgerID string, amount Amount, kind AuditKind, relatedID string, notes string, createdAt time.Time) (AuditEntry, error) {
	if entryID == "" {
		return AuditEntry{}, fmt.Errorf("%w: empty entry id", ErrInvalidAuditEntry)
	}
	if ledgerID == "" {
		return AuditEntry{}, fmt.Errorf("%w: empty ledger id", ErrInvalidAuditEntry)
	}
	if kind == "" {
		return AuditEntry{}, fmt.Errorf("%w: empty kind", ErrInvalidAuditEntry)
	}
	return AuditEntry{
		EntryID:   entryID,
		LedgerID:  ledgerID,
		Amount:    amount,
		Kind:      kind,
		RelatedID: relatedID,
		Notes:     notes,
		CreatedAt: createdAt,
	}, nil
}
