package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

func TestInitiateTransferLocksSenderPoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 0)

	escrow, err := f.service.InitiateTransfer(context.Background(), booking.Capability{MemberID: "sender"}, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if escrow.Status != booking.EscrowLocked {
		t.Fatalf("expected LOCKED, got %s", escrow.Status)
	}
	if !escrow.Expiry.Equal(f.now.Add(2 * time.Hour)) {
		t.Fatalf("expected expiry 2h out, got %v", escrow.Expiry)
	}
	if ledger := f.ledger(t, "sender"); ledger.Remaining != 70 || ledger.Locked != 30 {
		t.Fatalf("expected (70,30), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	if ledger := f.ledger(t, "recipient"); ledger.Remaining != 0 {
		t.Fatalf("initiate must not credit the recipient, got %d", ledger.Remaining)
	}
}

func TestInitiateTransferRejectsOverdraw(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 10)
	f.member(t, "recipient", 0)

	_, err := f.service.InitiateTransfer(context.Background(), booking.Capability{MemberID: "sender"}, "recipient", 30)
	if !errors.Is(err, points.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestInitiateTransferRejectsSelf(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)

	_, err := f.service.InitiateTransfer(context.Background(), booking.Capability{MemberID: "sender"}, "sender", 30)
	if !errors.Is(err, booking.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExecuteTransferConsumesAndCredits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 5)
	sender := booking.Capability{MemberID: "sender"}

	escrow, err := f.service.InitiateTransfer(context.Background(), sender, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := f.service.ExecuteTransfer(context.Background(), sender, escrow.TransferID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if ledger := f.ledger(t, "sender"); ledger.Remaining != 70 || ledger.Locked != 0 {
		t.Fatalf("expected (70,0), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	recipient := f.ledger(t, "recipient")
	if recipient.Remaining != 35 {
		t.Fatalf("expected remaining 35, got %d", recipient.Remaining)
	}
	if recipient.Total != 35 {
		t.Fatalf("received points count toward lifetime total, got %d", recipient.Total)
	}
	if entries := f.audits(t, "recipient", points.AuditTransferReceived); len(entries) != 1 || entries[0].Amount != 30 {
		t.Fatalf("expected one +30 received entry, got %+v", entries)
	}
	if entries := f.audits(t, "sender", points.AuditTransferConsumed); len(entries) != 1 || entries[0].Amount != -30 {
		t.Fatalf("expected one -30 consumed entry, got %+v", entries)
	}
}

func TestExecuteTransferRefusedAfterExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 0)
	sender := booking.Capability{MemberID: "sender"}

	escrow, err := f.service.InitiateTransfer(context.Background(), sender, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	f.now = f.now.Add(3 * time.Hour)
	if err := f.service.ExecuteTransfer(context.Background(), sender, escrow.TransferID); !errors.Is(err, booking.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if ledger := f.ledger(t, "sender"); ledger.Locked != 30 {
		t.Fatalf("expired execute must not move points, got locked %d", ledger.Locked)
	}
}

func TestExecuteTransferForbiddenForRecipient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 0)

	escrow, err := f.service.InitiateTransfer(context.Background(), booking.Capability{MemberID: "sender"}, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	err = f.service.ExecuteTransfer(context.Background(), booking.Capability{MemberID: "recipient"}, escrow.TransferID)
	if !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCancelTransferReturnsPoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 0)
	sender := booking.Capability{MemberID: "sender"}

	escrow, err := f.service.InitiateTransfer(context.Background(), sender, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := f.service.CancelTransfer(context.Background(), sender, escrow.TransferID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if ledger := f.ledger(t, "sender"); ledger.Remaining != 100 || ledger.Locked != 0 {
		t.Fatalf("expected (100,0), got (%d,%d)", ledger.Remaining, ledger.Locked)
	}
	if entries := f.audits(t, "sender", points.AuditTransferCancelled); len(entries) != 1 || entries[0].Amount != 30 {
		t.Fatalf("expected one +30 refund entry, got %+v", entries)
	}
}

func TestExecuteTransferTwiceIsInvalidState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.member(t, "sender", 100)
	f.member(t, "recipient", 0)
	sender := booking.Capability{MemberID: "sender"}

	escrow, err := f.service.InitiateTransfer(context.Background(), sender, "recipient", 30)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := f.service.ExecuteTransfer(context.Background(), sender, escrow.TransferID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := f.service.ExecuteTransfer(context.Background(), sender, escrow.TransferID); !errors.Is(err, booking.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if ledger := f.ledger(t, "recipient"); ledger.Remaining != 30 {
		t.Fatalf("double execute must not double credit, got %d", ledger.Remaining)
	}
}
