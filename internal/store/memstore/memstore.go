// Package memstore is an in-memory Store for tests and single-process
// development runs. A single mutex serializes transactions, so every
// ForUpdate read is trivially exclusive; rollback restores a pre-transaction
// snapshot of the whole state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

type state struct {
	ledgers   map[string]points.Ledger
	audits    []points.AuditEntry
	courses   map[string]booking.Course
	bookings  map[string]booking.Booking
	transfers map[string]booking.TransferEscrow
	purchases map[string]booking.Purchase
}

func newState() *state {
	return &state{
		ledgers:   map[string]points.Ledger{},
		courses:   map[string]booking.Course{},
		bookings:  map[string]booking.Booking{},
		transfers: map[string]booking.TransferEscrow{},
		purchases: map[string]booking.Purchase{},
	}
}

func (memState *state) clone() *state {
	copied := newState()
	for id, ledger := range memState.ledgers {
		copied.ledgers[id] = ledger
	}
	copied.audits = append([]points.AuditEntry(nil), memState.audits...)
	for id, course := range memState.courses {
		copied.courses[id] = course
	}
	for id, entry := range memState.bookings {
		copied.bookings[id] = entry
	}
	for id, transfer := range memState.transfers {
		copied.transfers[id] = transfer
	}
	for id, purchase := range memState.purchases {
		copied.purchases[id] = purchase
	}
	return copied
}

// Store implements booking.Store in memory.
type Store struct {
	root *Store
	mu   sync.Mutex
	data *state
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// enter takes the root lock unless the caller is already inside a
// transaction, where the lock is held for the transaction's duration.
func (store *Store) enter() func() {
	if store.root != nil {
		return func() {}
	}
	store.mu.Lock()
	return store.mu.Unlock
}

// WithTx runs fn against a snapshot-backed view. A nested call reuses the
// enclosing transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.root != nil {
		return fn(ctx, store)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := store.data.clone()
	txView := &Store{root: store, data: store.data}
	if err := fn(ctx, txView); err != nil {
		*store.data = *snapshot
		return err
	}
	return nil
}

func (store *Store) CreateLedger(ctx context.Context, ledger points.Ledger) error {
	defer store.enter()()
	if _, exists := store.data.ledgers[ledger.LedgerID]; exists {
		return fmt.Errorf("%w: ledger %s", booking.ErrAlreadyExists, ledger.LedgerID)
	}
	for _, existing := range store.data.ledgers {
		if existing.MemberID == ledger.MemberID {
			return fmt.Errorf("%w: ledger for member %s", booking.ErrAlreadyExists, ledger.MemberID)
		}
	}
	store.data.ledgers[ledger.LedgerID] = ledger
	return nil
}

func (store *Store) GetLedger(ctx context.Context, memberID string) (points.Ledger, error) {
	defer store.enter()()
	for _, ledger := range store.data.ledgers {
		if ledger.MemberID == memberID {
			return ledger, nil
		}
	}
	return points.Ledger{}, fmt.Errorf("%w: ledger for member %s", booking.ErrNotFound, memberID)
}

func (store *Store) GetLedgerForUpdate(ctx context.Context, memberID string) (points.Ledger, error) {
	return store.GetLedger(ctx, memberID)
}

func (store *Store) GetLedgerByIDForUpdate(ctx context.Context, ledgerID string) (points.Ledger, error) {
	defer store.enter()()
	ledger, exists := store.data.ledgers[ledgerID]
	if !exists {
		return points.Ledger{}, fmt.Errorf("%w: ledger %s", booking.ErrNotFound, ledgerID)
	}
	return ledger, nil
}

func (store *Store) SaveLedger(ctx context.Context, ledger points.Ledger) error {
	defer store.enter()()
	if _, exists := store.data.ledgers[ledger.LedgerID]; !exists {
		return fmt.Errorf("%w: ledger %s", booking.ErrNotFound, ledger.LedgerID)
	}
	store.data.ledgers[ledger.LedgerID] = ledger
	return nil
}

func (store *Store) AppendAudit(ctx context.Context, entry points.AuditEntry) error {
	defer store.enter()()
	store.data.audits = append(store.data.audits, entry)
	return nil
}

func (store *Store) ListAudit(ctx context.Context, ledgerID string, filter booking.AuditFilter) ([]points.AuditEntry, error) {
	defer store.enter()()
	var matched []points.AuditEntry
	for _, entry := range store.data.audits {
		if entry.LedgerID != ledgerID {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !entry.CreatedAt.Before(filter.To) {
			continue
		}
		matched = append(matched, entry)
	}
	// Newest first; insertion order breaks ties.
	for left, right := 0, len(matched)-1; left < right; left, right = left+1, right-1 {
		matched[left], matched[right] = matched[right], matched[left]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (store *Store) CreateCourse(ctx context.Context, course booking.Course) error {
	defer store.enter()()
	if _, exists := store.data.courses[course.CourseID]; exists {
		return fmt.Errorf("%w: course %s", booking.ErrAlreadyExists, course.CourseID)
	}
	store.data.courses[course.CourseID] = course
	return nil
}

func (store *Store) GetCourse(ctx context.Context, courseID string) (booking.Course, error) {
	defer store.enter()()
	course, exists := store.data.courses[courseID]
	if !exists {
		return booking.Course{}, fmt.Errorf("%w: course %s", booking.ErrNotFound, courseID)
	}
	return course, nil
}

func (store *Store) GetCourseForUpdate(ctx context.Context, courseID string) (booking.Course, error) {
	return store.GetCourse(ctx, courseID)
}

func (store *Store) SaveCourse(ctx context.Context, course booking.Course) error {
	defer store.enter()()
	if _, exists := store.data.courses[course.CourseID]; !exists {
		return fmt.Errorf("%w: course %s", booking.ErrNotFound, course.CourseID)
	}
	store.data.courses[course.CourseID] = course
	return nil
}

func (store *Store) ListCoursesToFinalize(ctx context.Context, cutoff time.Time) ([]booking.Course, error) {
	defer store.enter()()
	var matched []booking.Course
	for _, course := range store.data.courses {
		if course.Status == booking.CourseScheduled && course.EndTime.Before(cutoff) {
			matched = append(matched, course)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].CourseID < matched[right].CourseID
	})
	return matched, nil
}

func (store *Store) ListCoursesAwaitingConfirmation(ctx context.Context, from time.Time, to time.Time) ([]booking.Course, error) {
	defer store.enter()()
	var matched []booking.Course
	for _, course := range store.data.courses {
		if course.Status != booking.CourseScheduled || course.Confirmed {
			continue
		}
		if course.StartTime.Before(from) || !course.StartTime.Before(to) {
			continue
		}
		matched = append(matched, course)
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].CourseID < matched[right].CourseID
	})
	return matched, nil
}

func (store *Store) CreateBooking(ctx context.Context, entry booking.Booking) error {
	defer store.enter()()
	if _, exists := store.data.bookings[entry.BookingID]; exists {
		return fmt.Errorf("%w: booking %s", booking.ErrAlreadyExists, entry.BookingID)
	}
	store.data.bookings[entry.BookingID] = entry
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	defer store.enter()()
	entry, exists := store.data.bookings[bookingID]
	if !exists {
		return booking.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, bookingID)
	}
	return entry, nil
}

func (store *Store) GetBookingForUpdate(ctx context.Context, bookingID string) (booking.Booking, error) {
	return store.GetBooking(ctx, bookingID)
}

func (store *Store) SaveBooking(ctx context.Context, entry booking.Booking) error {
	defer store.enter()()
	if _, exists := store.data.bookings[entry.BookingID]; !exists {
		return fmt.Errorf("%w: booking %s", booking.ErrNotFound, entry.BookingID)
	}
	store.data.bookings[entry.BookingID] = entry
	return nil
}

func open(status booking.BookingStatus) bool {
	return status == booking.StatusConfirmed || status == booking.StatusReserved
}

func (store *Store) ListActiveOverlapping(ctx context.Context, memberID string, start time.Time, end time.Time) ([]booking.Booking, error) {
	defer store.enter()()
	var matched []booking.Booking
	for _, entry := range store.data.bookings {
		if entry.MemberID != memberID || !open(entry.Status) {
			continue
		}
		course, exists := store.data.courses[entry.CourseID]
		if !exists {
			continue
		}
		if course.StartTime.Before(end) && course.EndTime.After(start) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].BookingID < matched[right].BookingID
	})
	return matched, nil
}

func (store *Store) NextReserved(ctx context.Context, courseID string) (booking.Booking, error) {
	defer store.enter()()
	var next booking.Booking
	found := false
	for _, entry := range store.data.bookings {
		if entry.CourseID != courseID || entry.Status != booking.StatusReserved {
			continue
		}
		if !found || entry.WaitingRank < next.WaitingRank {
			next = entry
			found = true
		}
	}
	if !found {
		return booking.Booking{}, fmt.Errorf("%w: no reserved booking on course %s", booking.ErrNotFound, courseID)
	}
	return next, nil
}

func (store *Store) ListReservedExpired(ctx context.Context, now time.Time) ([]booking.Booking, error) {
	defer store.enter()()
	var matched []booking.Booking
	for _, entry := range store.data.bookings {
		if entry.Status != booking.StatusReserved || entry.LockExpiry == nil {
			continue
		}
		if !entry.LockExpiry.After(now) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].BookingID < matched[right].BookingID
	})
	return matched, nil
}

func (store *Store) ListOpenByCourse(ctx context.Context, courseID string) ([]booking.Booking, error) {
	defer store.enter()()
	var matched []booking.Booking
	for _, entry := range store.data.bookings {
		if entry.CourseID == courseID && open(entry.Status) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].BookingID < matched[right].BookingID
	})
	return matched, nil
}

func (store *Store) ListReservedByMember(ctx context.Context, memberID string) ([]booking.Booking, error) {
	defer store.enter()()
	var matched []booking.Booking
	for _, entry := range store.data.bookings {
		if entry.MemberID == memberID && entry.Status == booking.StatusReserved {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		return matched[left].BookingID < matched[right].BookingID
	})
	return matched, nil
}

func (store *Store) ListBookingsByMember(ctx context.Context, memberID string) ([]booking.Booking, error) {
	defer store.enter()()
	var matched []booking.Booking
	for _, entry := range store.data.bookings {
		if entry.MemberID == memberID {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left int, right int) bool {
		if matched[left].CreatedAt.Equal(matched[right].CreatedAt) {
			return matched[left].BookingID < matched[right].BookingID
		}
		return matched[left].CreatedAt.After(matched[right].CreatedAt)
	})
	return matched, nil
}

func (store *Store) CreateTransfer(ctx context.Context, transfer booking.TransferEscrow) error {
	defer store.enter()()
	if _, exists := store.data.transfers[transfer.TransferID]; exists {
		return fmt.Errorf("%w: transfer %s", booking.ErrAlreadyExists, transfer.TransferID)
	}
	store.data.transfers[transfer.TransferID] = transfer
	return nil
}

func (store *Store) GetTransferForUpdate(ctx context.Context, transferID string) (booking.TransferEscrow, error) {
	defer store.enter()()
	transfer, exists := store.data.transfers[transferID]
	if !exists {
		return booking.TransferEscrow{}, fmt.Errorf("%w: transfer %s", booking.ErrNotFound, transferID)
	}
	return transfer, nil
}

func (store *Store) SaveTransfer(ctx context.Context, transfer booking.TransferEscrow) error {
	defer store.enter()()
	if _, exists := store.data.transfers[transfer.TransferID]; !exists {
		return fmt.Errorf("%w: transfer %s", booking.ErrNotFound, transfer.TransferID)
	}
	store.data.transfers[transfer.TransferID] = transfer
	return nil
}

func (store *Store) CreatePurchase(ctx context.Context, purchase booking.Purchase) error {
	defer store.enter()()
	if _, exists := store.data.purchases[purchase.TransactionID]; exists {
		return fmt.Errorf("%w: purchase %s", booking.ErrAlreadyExists, purchase.TransactionID)
	}
	store.data.purchases[purchase.TransactionID] = purchase
	return nil
}

func (store *Store) GetPurchaseForUpdate(ctx context.Context, transactionID string) (booking.Purchase, error) {
	defer store.enter()()
	purchase, exists := store.data.purchases[transactionID]
	if !exists {
		return booking.Purchase{}, fmt.Errorf("%w: purchase %s", booking.ErrNotFound, transactionID)
	}
	return purchase, nil
}

func (store *Store) SavePurchase(ctx context.Context, purchase booking.Purchase) error {
	defer store.enter()()
	if _, exists := store.data.purchases[purchase.TransactionID]; !exists {
		return fmt.Errorf("%w: purchase %s", booking.ErrNotFound, purchase.TransactionID)
	}
	store.data.purchases[purchase.TransactionID] = purchase
	return nil
}

var _ booking.Store = (*Store)(nil)
