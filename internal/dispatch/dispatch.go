// Package dispatch delivers capacity-freed notifications to the waitlist
// promoter outside the transaction that freed the seat. Delivery is
// at-least-once with bounded retry; the promoter re-checks capacity under
// locks, so duplicates are harmless.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one capacity-freed event.
type Handler func(ctx context.Context, courseID string) error

const (
	defaultQueueDepth = 256
	defaultAttempts   = 3
	defaultBackoff    = 200 * time.Millisecond
)

// Dispatcher is a single-worker in-process queue implementing
// booking.EventSink.
type Dispatcher struct {
	logger   *zap.Logger
	handler  Handler
	queue    chan string
	attempts int
	backoff  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// Option customizes Dispatcher construction.
type Option func(*Dispatcher)

// WithLogger overrides the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(dispatcher *Dispatcher) {
		dispatcher.logger = logger
	}
}

// WithQueueDepth sets the event buffer size.
func WithQueueDepth(depth int) Option {
	return func(dispatcher *Dispatcher) {
		if depth > 0 {
			dispatcher.queue = make(chan string, depth)
		}
	}
}

// WithAttempts sets how many times a failing event is retried before it is
// dropped.
func WithAttempts(attempts int) Option {
	return func(dispatcher *Dispatcher) {
		if attempts > 0 {
			dispatcher.attempts = attempts
		}
	}
}

// WithBackoff sets the delay between retries.
func WithBackoff(backoff time.Duration) Option {
	return func(dispatcher *Dispatcher) {
		if backoff > 0 {
			dispatcher.backoff = backoff
		}
	}
}

// New builds a Dispatcher around handler. Call Start before publishing.
func New(handler Handler, options ...Option) *Dispatcher {
	dispatcher := &Dispatcher{
		logger:   zap.NewNop(),
		handler:  handler,
		queue:    make(chan string, defaultQueueDepth),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(dispatcher)
	}
	return dispatcher
}

// Start launches the worker. ctx cancellation stops consumption.
func (dispatcher *Dispatcher) Start(ctx context.Context) {
	dispatcher.startOnce.Do(func() {
		go dispatcher.run(ctx)
	})
}

// CapacityFreed enqueues a course for promotion. Never blocks the caller;
// when the queue is full the event is dropped with a warning, and a later
// event on the course makes up the lost work.
func (dispatcher *Dispatcher) CapacityFreed(courseID string) {
	select {
	case dispatcher.queue <- courseID:
	default:
		dispatcher.logger.Warn("event queue full, dropping capacity-freed event",
			zap.String("course_id", courseID))
	}
}

// Close stops the worker after draining queued events.
func (dispatcher *Dispatcher) Close() {
	dispatcher.stopOnce.Do(func() {
		close(dispatcher.queue)
	})
	<-dispatcher.done
}

func (dispatcher *Dispatcher) run(ctx context.Context) {
	defer close(dispatcher.done)
	for {
		select {
		case <-ctx.Done():
			return
		case courseID, ok := <-dispatcher.queue:
			if !ok {
				return
			}
			dispatcher.deliver(ctx, courseID)
		}
	}
}

func (dispatcher *Dispatcher) deliver(ctx context.Context, courseID string) {
	var err error
	for attempt := 1; attempt <= dispatcher.attempts; attempt++ {
		if err = dispatcher.handler(ctx, courseID); err == nil {
			return
		}
		dispatcher.logger.Warn("capacity-freed handler failed",
			zap.String("course_id", courseID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(dispatcher.backoff):
		}
	}
	dispatcher.logger.Error("capacity-freed event dropped after retries",
		zap.String("course_id", courseID),
		zap.Error(err))
}
