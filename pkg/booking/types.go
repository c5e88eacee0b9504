package booking

import (
	"time"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	StatusConfirmed         BookingStatus = "CONFIRMED"
	StatusReserved          BookingStatus = "RESERVED"
	StatusCancelled         BookingStatus = "CANCELLED"
	StatusCancelledByAdmin  BookingStatus = "CANCELLED_BY_ADMIN"
	StatusCancelledBySystem BookingStatus = "CANCELLED_BY_SYSTEM"
	StatusAttended          BookingStatus = "ATTENDED"
	StatusNoShow            BookingStatus = "NO_SHOW"
	StatusPromotionFailed   BookingStatus = "PROMOTION_FAILED"
)

// Terminal reports whether the status is final. Terminal bookings are never
// mutated again.
func (status BookingStatus) Terminal() bool {
	switch status {
	case StatusCancelled, StatusCancelledByAdmin, StatusCancelledBySystem,
		StatusAttended, StatusNoShow, StatusPromotionFailed:
		return true
	}
	return false
}

// CourseStatus defines the course lifecycle.
type CourseStatus string

const (
	CourseScheduled CourseStatus = "SCHEDULED"
	CourseCancelled CourseStatus = "CANCELLED"
	CourseCompleted CourseStatus = "COMPLETED"
)

// EscrowStatus defines the transfer escrow lifecycle. An escrow is
// immutable once it leaves LOCKED.
type EscrowStatus string

const (
	EscrowLocked    EscrowStatus = "LOCKED"
	EscrowConfirmed EscrowStatus = "CONFIRMED"
	EscrowCancelled EscrowStatus = "CANCELLED"
)

// Course is a scheduled capacity-bound session. ConfirmedCount is bounded
// by Capacity; NextWaitingRank is the monotonic rank counter advanced under
// the course lock.
type Course struct {
	CourseID        string
	Name            string
	CoachID         string
	Capacity        int
	MinCapacity     int
	ConfirmedCount  int
	NextWaitingRank int
	StartTime       time.Time
	EndTime         time.Time
	RequiredPoints  points.Amount
	Status          CourseStatus
	Confirmed       bool
}

// Participant identifies who attends under a member's booking. A zero
// participant means the member attends in person.
type Participant struct {
	ChildID   string `json:"childId,omitempty"`
	GuestName string `json:"guestName,omitempty"`
	GuestAge  int    `json:"guestAge,omitempty"`
}

// Booking ties a member to a course seat or waitlist slot. PointsReserved
// is fixed at creation and is the exact amount any later refund or unlock
// uses. Bookings are never deleted; terminal states are final.
type Booking struct {
	BookingID      string
	MemberID       string
	CourseID       string
	Status         BookingStatus
	PointsReserved points.Amount
	WaitingRank    int
	LockExpiry     *time.Time
	Participant    Participant
	CreatedAt      time.Time
	CancelledAt    *time.Time
	AttendedAt     *time.Time
}

// TransferEscrow is a three-phase peer-to-peer point transfer. Created
// LOCKED by the sender; only execute or cancel on the same id may mutate
// it, and only while LOCKED.
type TransferEscrow struct {
	TransferID        string
	SenderLedgerID    string
	RecipientLedgerID string
	Amount            points.Amount
	Status            EscrowStatus
	Expiry            time.Time
	CreatedAt         time.Time
}

// PurchaseStatus defines the payment transaction lifecycle.
type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "PENDING"
	PurchasePaid    PurchaseStatus = "PAID"
	PurchaseFailed  PurchaseStatus = "FAILED"
)

// Purchase records a point-package payment. The gateway itself is external;
// only its success/failure callback reaches the core, keyed by
// TransactionID for duplicate-safe processing.
type Purchase struct {
	TransactionID string
	MemberID      string
	AmountCents   int64
	Points        points.Amount
	Status        PurchaseStatus
	Description   string
	CreatedAt     time.Time
}

// AuditFilter narrows audit history queries.
type AuditFilter struct {
	Kind  points.AuditKind
	From  time.Time
	To    time.Time
	Limit int
}
