package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

type stubSweeps struct {
	reapCalls     int
	finalizeCalls int
	capacityCalls int
	err           error
}

func (stub *stubSweeps) ReapExpiredReservations(ctx context.Context) (int, error) {
	stub.reapCalls++
	return 1, stub.err
}

func (stub *stubSweeps) FinalizeEndedCourses(ctx context.Context) (int, error) {
	stub.finalizeCalls++
	return 1, stub.err
}

func (stub *stubSweeps) ConfirmMinimumCapacity(ctx context.Context) (booking.CapacityReport, error) {
	stub.capacityCalls++
	return booking.CapacityReport{Confirmed: 1}, stub.err
}

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()
	config := DefaultConfig()
	config.ReapSpec = "not a cron spec"
	if _, err := New(&stubSweeps{}, config, nil); err == nil {
		t.Fatal("expected error for malformed spec")
	}
}

func TestNewRejectsNilSweeps(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, DefaultConfig(), nil); err == nil {
		t.Fatal("expected error for nil sweeps")
	}
}

func TestJobsInvokeSweeps(t *testing.T) {
	t.Parallel()
	stub := &stubSweeps{}
	scheduler, err := New(stub, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	scheduler.runReap()
	scheduler.runFinalize()
	scheduler.runCapacity()

	if stub.reapCalls != 1 || stub.finalizeCalls != 1 || stub.capacityCalls != 1 {
		t.Fatalf("expected each sweep once, got %d %d %d", stub.reapCalls, stub.finalizeCalls, stub.capacityCalls)
	}
}

func TestJobsSurviveSweepErrors(t *testing.T) {
	t.Parallel()
	stub := &stubSweeps{err: errors.New("storage down")}
	scheduler, err := New(stub, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	// Errors are logged, not propagated; the next tick must still run.
	scheduler.runReap()
	scheduler.runReap()
	if stub.reapCalls != 2 {
		t.Fatalf("expected 2 reap calls, got %d", stub.reapCalls)
	}
}
