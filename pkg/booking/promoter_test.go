package booking_test

import (
	"context"
	"testing"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

func TestPromoteNextConfirmsLowestRank(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.member(t, "mem-3", 100)
	f.course(t, "course-1", 1, 0)

	seat := f.book(t, "mem-1", "course-1")
	second := f.book(t, "mem-2", "course-1")
	f.book(t, "mem-3", "course-1")

	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-1"}, seat.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	promoted, err := f.service.PromoteNext(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !promoted {
		t.Fatal("expected a promotion")
	}

	confirmed := f.booking(t, second.BookingID)
	if confirmed.Status != booking.StatusConfirmed || confirmed.WaitingRank != 0 || confirmed.LockExpiry != nil {
		t.Fatalf("expected promoted booking confirmed, got %+v", confirmed)
	}
	// The reservation's locked points are consumed, not returned.
	if ledger := f.ledger(t, "mem-2"); ledger.Remaining != 90 || ledger.Locked != 0 {
		t.Fatalf("expected (90,0), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	if course := f.courseRow(t, "course-1"); course.ConfirmedCount != 1 {
		t.Fatalf("expected confirmed count 1, got %d", course.ConfirmedCount)
	}
	if entries := f.audits(t, "mem-2", points.AuditWaitlistConfirmed); len(entries) != 1 || entries[0].Amount != -10 {
		t.Fatalf("expected one -10 promotion entry, got %+v", entries)
	}
}

func TestPromoteNextNoopWhenCourseFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.course(t, "course-1", 1, 0)
	f.book(t, "mem-1", "course-1")
	waiting := f.book(t, "mem-2", "course-1")

	promoted, err := f.service.PromoteNext(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted {
		t.Fatal("full course must not promote")
	}
	if still := f.booking(t, waiting.BookingID); still.Status != booking.StatusReserved {
		t.Fatalf("expected still RESERVED, got %s", still.Status)
	}
}

func TestPromoteNextNoopOnEmptyWaitlist(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.course(t, "course-1", 2, 0)
	f.book(t, "mem-1", "course-1")

	promoted, err := f.service.PromoteNext(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted {
		t.Fatal("empty waitlist must not promote")
	}
}

func TestPromoteMarksFailureWhenLockedCoverMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 100)
	f.member(t, "mem-2", 100)
	f.course(t, "course-1", 1, 0)
	seat := f.book(t, "mem-1", "course-1")
	waiting := f.book(t, "mem-2", "course-1")

	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-1"}, seat.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Corrupt the ledger so the locked balance no longer covers the
	// reservation.
	ctx := context.Background()
	ledger, err := f.store.GetLedger(ctx, "mem-2")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	ledger.Locked = 0
	if err := f.store.SaveLedger(ctx, ledger); err != nil {
		t.Fatalf("save ledger: %v", err)
	}

	promoted, err := f.service.PromoteNext(ctx, "course-1")
	if err != nil {
		t.Fatalf("promote must not fail the sweep: %v", err)
	}
	if promoted {
		t.Fatal("integrity failure must not count as promotion")
	}
	if failed := f.booking(t, waiting.BookingID); failed.Status != booking.StatusPromotionFailed {
		t.Fatalf("expected PROMOTION_FAILED, got %s", failed.Status)
	}
	if course := f.courseRow(t, "course-1"); course.ConfirmedCount != 0 {
		t.Fatalf("failed promotion must not take the seat, got count %d", course.ConfirmedCount)
	}
}

func TestPromoteAvailableFillsEveryFreeSeat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, memberID := range []string{"mem-1", "mem-2", "mem-3"} {
		f.member(t, memberID, 100)
	}
	f.course(t, "course-1", 1, 0)
	seat := f.book(t, "mem-1", "course-1")
	f.book(t, "mem-2", "course-1")
	f.book(t, "mem-3", "course-1")

	if _, err := f.service.Cancel(context.Background(), booking.Capability{MemberID: "mem-1"}, seat.BookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	count, err := f.service.PromoteAvailable(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("promote available: %v", err)
	}
	if count != 1 {
		t.Fatalf("one freed seat admits one booking, got %d", count)
	}
}
