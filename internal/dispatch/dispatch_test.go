package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu       sync.Mutex
	calls    []string
	failures int
}

func (handler *recordingHandler) handle(ctx context.Context, courseID string) error {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	handler.calls = append(handler.calls, courseID)
	if handler.failures > 0 {
		handler.failures--
		return errors.New("transient")
	}
	return nil
}

func (handler *recordingHandler) snapshot() []string {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	return append([]string(nil), handler.calls...)
}

func TestDispatcherDeliversEvents(t *testing.T) {
	t.Parallel()
	handler := &recordingHandler{}
	dispatcher := New(handler.handle)
	dispatcher.Start(context.Background())

	dispatcher.CapacityFreed("course-1")
	dispatcher.CapacityFreed("course-2")
	dispatcher.Close()

	calls := handler.snapshot()
	if len(calls) != 2 || calls[0] != "course-1" || calls[1] != "course-2" {
		t.Fatalf("expected [course-1 course-2], got %v", calls)
	}
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	handler := &recordingHandler{failures: 2}
	dispatcher := New(handler.handle, WithAttempts(3), WithBackoff(time.Millisecond))
	dispatcher.Start(context.Background())

	dispatcher.CapacityFreed("course-1")
	dispatcher.Close()

	if calls := handler.snapshot(); len(calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(calls))
	}
}

func TestDispatcherGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()
	handler := &recordingHandler{failures: 10}
	dispatcher := New(handler.handle, WithAttempts(2), WithBackoff(time.Millisecond))
	dispatcher.Start(context.Background())

	dispatcher.CapacityFreed("course-1")
	dispatcher.Close()

	if calls := handler.snapshot(); len(calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(calls))
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	handler := &recordingHandler{}
	dispatcher := New(handler.handle, WithQueueDepth(1))
	// Not started, so the queue cannot drain.
	dispatcher.CapacityFreed("course-1")
	dispatcher.CapacityFreed("course-2")

	dispatcher.Start(context.Background())
	dispatcher.Close()

	if calls := handler.snapshot(); len(calls) != 1 || calls[0] != "course-1" {
		t.Fatalf("expected only course-1 delivered, got %v", calls)
	}
}
