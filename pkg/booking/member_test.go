package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

func TestRegisterMemberSeedsStartingGrant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ledger, err := f.service.RegisterMember(context.Background(), "mem-1", 30)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ledger.Remaining != 30 || ledger.Total != 30 {
		t.Fatalf("expected remaining and total 30, got (%d,%d)", ledger.Remaining, ledger.Total)
	}
	if entries := f.audits(t, "mem-1", points.AuditStartingGrant); len(entries) != 1 || entries[0].Amount != 30 {
		t.Fatalf("expected one +30 grant entry, got %+v", entries)
	}
}

func TestRegisterMemberTwiceRefused(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 0)

	if _, err := f.service.RegisterMember(context.Background(), "mem-1", 0); !errors.Is(err, booking.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestBalanceForbiddenForStranger(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 30)

	if _, err := f.service.Balance(context.Background(), booking.Capability{MemberID: "mem-2"}, "mem-1"); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if ledger, err := f.service.Balance(context.Background(), adminCap, "mem-1"); err != nil || ledger.Remaining != 30 {
		t.Fatalf("admin balance read failed: %v %+v", err, ledger)
	}
}

func TestPurchaseCreditsExactlyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 0)
	ctx := context.Background()

	purchase, err := f.service.InitiatePurchase(ctx, booking.Capability{MemberID: "mem-1"}, 1999, 100, "starter")
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	if purchase.Status != booking.PurchasePending {
		t.Fatalf("expected PENDING, got %s", purchase.Status)
	}

	if err := f.service.CompletePurchase(ctx, purchase.TransactionID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Gateways retry callbacks; the second settle must be a no-op.
	if err := f.service.CompletePurchase(ctx, purchase.TransactionID, true); err != nil {
		t.Fatalf("duplicate complete: %v", err)
	}

	ledger := f.ledger(t, "mem-1")
	if ledger.Remaining != 100 || ledger.Total != 100 {
		t.Fatalf("expected remaining and total 100, got (%d,%d)", ledger.Remaining, ledger.Total)
	}
	if ledger.PurchaseCents != 1999 {
		t.Fatalf("expected purchase cents 1999, got %d", ledger.PurchaseCents)
	}
	if entries := f.audits(t, "mem-1", points.AuditPointPurchase); len(entries) != 1 {
		t.Fatalf("expected exactly one purchase entry, got %+v", entries)
	}
}

func TestPurchaseFailureCreditsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 0)
	ctx := context.Background()

	purchase, err := f.service.InitiatePurchase(ctx, booking.Capability{MemberID: "mem-1"}, 1999, 100, "starter")
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	if err := f.service.CompletePurchase(ctx, purchase.TransactionID, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 0 {
		t.Fatalf("failed purchase must not credit, got %d", ledger.Remaining)
	}
	// A late success callback on a failed transaction changes nothing.
	if err := f.service.CompletePurchase(ctx, purchase.TransactionID, true); err != nil {
		t.Fatalf("late complete: %v", err)
	}
	if ledger := f.ledger(t, "mem-1"); ledger.Remaining != 0 {
		t.Fatalf("settled transaction must stay settled, got %d", ledger.Remaining)
	}
}

func TestHistoryFiltersByKind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "mem-1", 30)
	f.course(t, "course-1", 5, 0)
	f.book(t, "mem-1", "course-1")

	entries := f.audits(t, "mem-1", points.AuditBookingConfirmed)
	if len(entries) != 1 {
		t.Fatalf("expected one confirmation entry, got %d", len(entries))
	}
	all, err := f.service.History(context.Background(), booking.Capability{MemberID: "mem-1"}, "mem-1", booking.AuditFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected grant and confirmation entries, got %d", len(all))
	}
}
