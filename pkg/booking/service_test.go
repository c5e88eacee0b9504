package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bookings/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

type sinkRecorder struct {
	freed []string
}

func (recorder *sinkRecorder) CapacityFreed(courseID string) {
	recorder.freed = append(recorder.freed, courseID)
}

type fixture struct {
	service *booking.Service
	store   *memstore.Store
	now     time.Time
	events  *sinkRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		now:    time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC),
		events: &sinkRecorder{},
	}
	sequence := 0
	service, err := booking.NewService(
		f.store,
		func() time.Time { return f.now },
		booking.WithEventSink(f.events),
		booking.WithIDGenerator(func() string {
			sequence++
			return fmt.Sprintf("id-%03d", sequence)
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.service = service
	return f
}

func (f *fixture) member(t *testing.T, memberID string, grant points.Amount) {
	t.Helper()
	if _, err := f.service.RegisterMember(context.Background(), memberID, grant); err != nil {
		t.Fatalf("register %s: %v", memberID, err)
	}
}

// course seeds a scheduled course costing 10 points, starting 48 hours from
// the fixture clock unless shifted.
func (f *fixture) course(t *testing.T, courseID string, capacity int, startShift time.Duration) booking.Course {
	t.Helper()
	course := booking.Course{
		CourseID:        courseID,
		Name:            "test course " + courseID,
		Capacity:        capacity,
		ConfirmedCount:  0,
		NextWaitingRank: 1,
		StartTime:       f.now.Add(48*time.Hour + startShift),
		RequiredPoints:  10,
		Status:          booking.CourseScheduled,
	}
	course.EndTime = course.StartTime.Add(time.Hour)
	if err := f.store.CreateCourse(context.Background(), course); err != nil {
		t.Fatalf("create course %s: %v", courseID, err)
	}
	return course
}

func (f *fixture) book(t *testing.T, memberID string, courseID string) booking.CreateResult {
	t.Helper()
	results, err := f.service.Create(context.Background(), booking.Capability{MemberID: memberID}, booking.CreateRequest{
		CourseID:     courseID,
		Participants: []booking.Participant{{}},
	})
	if err != nil {
		t.Fatalf("create booking for %s on %s: %v", memberID, courseID, err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	return results[0]
}

func (f *fixture) ledger(t *testing.T, memberID string) points.Ledger {
	t.Helper()
	ledger, err := f.store.GetLedger(context.Background(), memberID)
	if err != nil {
		t.Fatalf("get ledger %s: %v", memberID, err)
	}
	return ledger
}

func (f *fixture) booking(t *testing.T, bookingID string) booking.Booking {
	t.Helper()
	found, err := f.store.GetBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("get booking %s: %v", bookingID, err)
	}
	return found
}

func (f *fixture) courseRow(t *testing.T, courseID string) booking.Course {
	t.Helper()
	found, err := f.store.GetCourse(context.Background(), courseID)
	if err != nil {
		t.Fatalf("get course %s: %v", courseID, err)
	}
	return found
}

func (f *fixture) audits(t *testing.T, memberID string, kind points.AuditKind) []points.AuditEntry {
	t.Helper()
	entries, err := f.service.History(context.Background(), booking.Capability{MemberID: memberID}, memberID, booking.AuditFilter{Kind: kind})
	if err != nil {
		t.Fatalf("history %s: %v", memberID, err)
	}
	return entries
}

func TestCreateConfirmsWhileSeatsLast(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 2, 0)

	result := f.book(t, "mem-1", "course-1")

	if result.Status != booking.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", result.Status)
	}
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 90 || ledger.Locked != 0 {
		t.Fatalf("expected (90,0), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	if course := f.courseRow(t, "course-1"); course.ConfirmedCount != 1 {
		t.Fatalf("expected confirmed count 1, got %d", course.ConfirmedCount)
	}
	if entries := f.audits(t, "mem-1", points.AuditBookingConfirmed); len(entries) != 1 || entries[0].Amount != -10 {
		t.Fatalf("expected one -10 confirmation entry, got %+v", entries)
	}
}

func TestCreateWaitlistsWhenFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.course(t, "course-1", 1, 0)

	f.book(t, "mem-1", "course-1")
	result := f.book(t, "mem-2", "course-1")

	if result.Status != booking.StatusReserved || result.WaitingRank != 1 {
		t.Fatalf("expected RESERVED rank 1, got %s rank %d", result.Status, result.WaitingRank)
	}
	if ledger := f.ledger(t, "mem-2"); ledger.Remaining != 90 || ledger.Locked != 10 {
		t.Fatalf("expected (90,10), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	reserved := f.booking(t, result.BookingID)
	if reserved.LockExpiry == nil || !reserved.LockExpiry.Equal(f.now.Add(30*time.Minute)) {
		t.Fatalf("expected lock expiry 30m out, got %v", reserved.LockExpiry)
	}
}

func TestCreateWaitingRanksNeverReused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, memberID := range []string{"mem-1", "mem-2", "mem-3", "mem-4"} {
		f.member(t, memberID, 100)
	}
	f.course(t, "course-1", 1, 0)

	f.book(t, "mem-1", "course-1")
	second := f.book(t, "mem-2", "course-1")
	third := f.book(t, "mem-3", "course-1")

	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-2"}, second.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	fourth := f.book(t, "mem-4", "course-1")

	if third.WaitingRank != 2 || fourth.WaitingRank != 3 {
		t.Fatalf("ranks must be monotonic, got %d and %d", third.WaitingRank, fourth.WaitingRank)
	}
}

func TestCreateRejectsParticipantsWithoutCover(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 15)
	f.course(t, "course-1", 5, 0)

	results, err := f.service.Create(context.Background(), booking.Capability{MemberID: "mem-1"}, booking.CreateRequest{
		CourseID:     "course-1",
		Participants: []booking.Participant{{}, {GuestName: "guest", GuestAge: 30}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if results[0].Status != booking.StatusConfirmed {
		t.Fatalf("first participant should confirm, got %+v", results[0])
	}
	if !results[1].Rejected || results[1].BookingID != "" {
		t.Fatalf("second participant should be rejected, got %+v", results[1])
	}
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 5 {
		t.Fatalf("expected remaining 5, got %d", ledger.Remaining)
	}
}

func TestCreateRefusesOverlapWithoutOverride(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 5, 0)
	f.course(t, "course-2", 5, 30*time.Minute)

	existing := f.book(t, "mem-1", "course-1")

	_, err := f.service.Create(context.Background(), booking.Capability{MemberID: "mem-1"}, booking.CreateRequest{
		CourseID:     "course-2",
		Participants: []booking.Participant{{}},
	})
	if !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict booking.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T", err)
	}
	if len(conflict.BookingIDs) != 1 || conflict.BookingIDs[0] != existing.BookingID {
		t.Fatalf("expected conflict with %s, got %v", existing.BookingID, conflict.BookingIDs)
	}
}

func TestCreateOverrideCancelsConflicts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 5, 0)
	f.course(t, "course-2", 5, 30*time.Minute)

	existing := f.book(t, "mem-1", "course-1")

	results, err := f.service.Create(context.Background(), booking.Capability{MemberID: "mem-1"}, booking.CreateRequest{
		CourseID:      "course-2",
		Participants:  []booking.Participant{{}},
		ForceOverride: true,
	})
	if err != nil {
		t.Fatalf("create with override: %v", err)
	}
	if results[0].Status != booking.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %+v", results[0])
	}

	if cancelled := f.booking(t, existing.BookingID); cancelled.Status != booking.StatusCancelled {
		t.Fatalf("conflicting booking should be cancelled, got %s", cancelled.Status)
	}
	// Refund for the old seat plus the charge for the new one.
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 90 {
		t.Fatalf("expected remaining 90, got %d", ledger.Remaining)
	}
	if len(f.events.freed) != 1 || f.events.freed[0] != "course-1" {
		t.Fatalf("expected capacity freed on course-1, got %v", f.events.freed)
	}
}

func TestCancelConfirmedRefundsAndFreesSeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 1, 0)
	result := f.book(t, "mem-1", "course-1")

	refund, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-1"}, result.BookingID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != 10 {
		t.Fatalf("expected refund 10, got %d", refund)
	}
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 100 {
		t.Fatalf("expected remaining 100, got %d", ledger.Remaining)
	}
	if course := f.courseRow(t, "course-1"); course.ConfirmedCount != 0 {
		t.Fatalf("expected seat freed, got count %d", course.ConfirmedCount)
	}
	if cancelled := f.booking(t, result.BookingID); cancelled.Status != booking.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected CANCELLED with timestamp, got %+v", cancelled)
	}
	if len(f.events.freed) != 1 || f.events.freed[0] != "course-1" {
		t.Fatalf("expected capacity freed event, got %v", f.events.freed)
	}
}

func TestCancelReservedReleasesLockWithoutEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.course(t, "course-1", 1, 0)
	f.book(t, "mem-1", "course-1")
	reserved := f.book(t, "mem-2", "course-1")

	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-2"}, reserved.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ledger := f.ledger(t, "mem-2"); ledger.Remaining != 100 || ledger.Locked != 0 {
		t.Fatalf("expected (100,0), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	if len(f.events.freed) != 0 {
		t.Fatalf("waitlist cancel frees no seat, got %v", f.events.freed)
	}
}

func TestCancelAfterDeadlineRefused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 5, 0)
	result := f.book(t, "mem-1", "course-1")

	f.now = f.now.Add(25 * time.Hour)
	_, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-1"}, result.BookingID)
	if !errors.Is(err, booking.ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
	if active := f.booking(t, result.BookingID); active.Status != booking.StatusConfirmed {
		t.Fatalf("refused cancel must not mutate, got %s", active.Status)
	}
}

func TestAdminCancelBypassesDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 5, 0)
	result := f.book(t, "mem-1", "course-1")

	f.now = f.now.Add(25 * time.Hour)
	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "admin-1", Admin: true}, result.BookingID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled := f.booking(t, result.BookingID); cancelled.Status != booking.StatusCancelledByAdmin {
		t.Fatalf("expected CANCELLED_BY_ADMIN, got %s", cancelled.Status)
	}
}

func TestCancelTerminalBookingIsInvalidState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 5, 0)
	result := f.book(t, "mem-1", "course-1")

	capability := booking.Capability{MemberID: "mem-1"}
	if _, err := f.service.Cancel(context.Background(), capability, result.BookingID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := f.service.Cancel(context.Background(), capability, result.BookingID); !errors.Is(err, booking.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelForbiddenForStranger(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.course(t, "course-1", 5, 0)
	result := f.book(t, "mem-1", "course-1")

	_, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-2"}, result.BookingID)
	if !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateOverrideRebooksSameCourse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 1, 0)
	existing := f.book(t, "mem-1", "course-1")

	results, err := f.service.Create(context.Background(), booking.Capability{MemberID: "mem-1"}, booking.CreateRequest{
		CourseID:      "course-1",
		Participants:  []booking.Participant{{GuestName: "cousin"}},
		ForceOverride: true,
	})
	if err != nil {
		t.Fatalf("create with override: %v", err)
	}
	if results[0].Status != booking.StatusConfirmed || results[0].BookingID == existing.BookingID {
		t.Fatalf("expected a fresh CONFIRMED booking, got %+v", results[0])
	}

	if cancelled := f.booking(t, existing.BookingID); cancelled.Status != booking.StatusCancelled {
		t.Fatalf("old booking should be cancelled, got %s", cancelled.Status)
	}
	// The freed seat is retaken within the same unit.
	if row := f.courseRow(t, "course-1"); row.ConfirmedCount != 1 {
		t.Fatalf("expected confirmed count 1, got %d", row.ConfirmedCount)
	}
	// Refund for the old seat cancels out the charge for the new one.
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 90 {
		t.Fatalf("expected remaining 90, got %d", ledger.Remaining)
	}
	if len(f.events.freed) != 1 || f.events.freed[0] != "course-1" {
		t.Fatalf("expected capacity freed on course-1, got %v", f.events.freed)
	}
}

// Concurrent requests race for a single seat; the store serializes the
// units, so exactly one caller may win it.
func TestCreateConcurrentRequestsFillExactlyOneSeat(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	now := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	service, err := booking.NewService(store, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	course := booking.Course{
		CourseID:        "course-1",
		Name:            "single seat",
		Capacity:        1,
		NextWaitingRank: 1,
		StartTime:       now.Add(48 * time.Hour),
		RequiredPoints:  10,
		Status:          booking.CourseScheduled,
	}
	course.EndTime = course.StartTime.Add(time.Hour)
	if err := store.CreateCourse(context.Background(), course); err != nil {
		t.Fatalf("create course: %v", err)
	}

	const contenders = 8
	for i := 0; i < contenders; i++ {
		memberID := fmt.Sprintf("mem-%d", i)
		if _, err := service.RegisterMember(context.Background(), memberID, 10); err != nil {
			t.Fatalf("register %s: %v", memberID, err)
		}
	}

	var wg sync.WaitGroup
	outcomes := make(chan booking.CreateResult, contenders)
	for i := 0; i < contenders; i++ {
		memberID := fmt.Sprintf("mem-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := service.Create(context.Background(), booking.Capability{MemberID: memberID}, booking.CreateRequest{
				CourseID:     "course-1",
				Participants: []booking.Participant{{}},
			})
			if err != nil || len(results) != 1 {
				t.Errorf("create for %s: %v (%d results)", memberID, err, len(results))
				return
			}
			outcomes <- results[0]
		}()
	}
	wg.Wait()
	close(outcomes)

	confirmed, reserved := 0, 0
	for result := range outcomes {
		switch result.Status {
		case booking.StatusConfirmed:
			confirmed++
		case booking.StatusReserved:
			reserved++
		default:
			t.Fatalf("unexpected status %s", result.Status)
		}
	}
	if confirmed != 1 || reserved != contenders-1 {
		t.Fatalf("expected 1 confirmed and %d reserved, got %d and %d", contenders-1, confirmed, reserved)
	}
	row, err := store.GetCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if row.ConfirmedCount != 1 {
		t.Fatalf("expected confirmed count 1, got %d", row.ConfirmedCount)
	}
}
