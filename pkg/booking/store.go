package booking

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// Store is the persistence contract for the booking core. Implementations
// must make WithTx atomic and make the ForUpdate reads take exclusive row
// locks for the duration of the transaction. Callers acquire locks in the
// canonical order Course, Ledger, Booking; reads that skip a lock are
// re-validated after the locks are held.
type Store interface {
	// WithTx runs fn inside a transaction. A non-nil error from fn rolls
	// everything back; otherwise the transaction commits.
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateLedger(ctx context.Context, ledger points.Ledger) error
	GetLedger(ctx context.Context, memberID string) (points.Ledger, error)
	GetLedgerForUpdate(ctx context.Context, memberID string) (points.Ledger, error)
	GetLedgerByIDForUpdate(ctx context.Context, ledgerID string) (points.Ledger, error)
	SaveLedger(ctx context.Context, ledger points.Ledger) error
	AppendAudit(ctx context.Context, entry points.AuditEntry) error
	ListAudit(ctx context.Context, ledgerID string, filter AuditFilter) ([]points.AuditEntry, error)

	CreateCourse(ctx context.Context, course Course) error
	GetCourse(ctx context.Context, courseID string) (Course, error)
	GetCourseForUpdate(ctx context.Context, courseID string) (Course, error)
	SaveCourse(ctx context.Context, course Course) error
	// ListCoursesToFinalize returns non-terminal courses whose end time is
	// before the cutoff.
	ListCoursesToFinalize(ctx context.Context, cutoff time.Time) ([]Course, error)
	// ListCoursesAwaitingConfirmation returns unconfirmed scheduled courses
	// starting inside [from, to).
	ListCoursesAwaitingConfirmation(ctx context.Context, from time.Time, to time.Time) ([]Course, error)

	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	GetBookingForUpdate(ctx context.Context, bookingID string) (Booking, error)
	SaveBooking(ctx context.Context, booking Booking) error
	// ListActiveOverlapping returns the member's CONFIRMED and RESERVED
	// bookings on courses overlapping [start, end).
	ListActiveOverlapping(ctx context.Context, memberID string, start time.Time, end time.Time) ([]Booking, error)
	// NextReserved returns the RESERVED booking with the lowest waiting
	// rank on the course, or ErrNotFound when the waitlist is empty.
	NextReserved(ctx context.Context, courseID string) (Booking, error)
	// ListReservedExpired returns RESERVED bookings whose lock expiry is at
	// or before now.
	ListReservedExpired(ctx context.Context, now time.Time) ([]Booking, error)
	// ListOpenByCourse returns the course's CONFIRMED and RESERVED bookings.
	ListOpenByCourse(ctx context.Context, courseID string) ([]Booking, error)
	// ListReservedByMember returns the member's RESERVED bookings.
	ListReservedByMember(ctx context.Context, memberID string) ([]Booking, error)
	ListBookingsByMember(ctx context.Context, memberID string) ([]Booking, error)

	CreateTransfer(ctx context.Context, transfer TransferEscrow) error
	GetTransferForUpdate(ctx context.Context, transferID string) (TransferEscrow, error)
	SaveTransfer(ctx context.Context, transfer TransferEscrow) error

	CreatePurchase(ctx context.Context, purchase Purchase) error
	GetPurchaseForUpdate(ctx context.Context, transactionID string) (Purchase, error)
	SavePurchase(ctx context.Context, purchase Purchase) error
}
