package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// Policy groups the tunable windows of the booking core.
type Policy struct {
	// CancellationWindow is the lead time before course start after which
	// member cancellation is refused.
	CancellationWindow time.Duration
	// ReservationTimeout bounds how long a waitlist reservation keeps
	// points locked before the reaper releases them.
	ReservationTimeout time.Duration
	// AttendanceLock is how long after course end the coach may still mark
	// attendance and the finalizer must wait.
	AttendanceLock time.Duration
	// CheckInWindow is how long before course start attendance marking
	// opens.
	CheckInWindow time.Duration
	// TransferLock bounds how long a transfer escrow stays executable.
	TransferLock time.Duration
	// UnitTimeout bounds every atomic unit of work.
	UnitTimeout time.Duration
}

// DefaultPolicy returns the stock windows.
func DefaultPolicy() Policy {
	return Policy{
		CancellationWindow: 24 * time.Hour,
		ReservationTimeout: 30 * time.Minute,
		AttendanceLock:     time.Hour,
		CheckInWindow:      15 * time.Minute,
		TransferLock:       2 * time.Hour,
		UnitTimeout:        10 * time.Second,
	}
}

func (policy Policy) validate() error {
	if policy.CancellationWindow <= 0 || policy.ReservationTimeout <= 0 ||
		policy.AttendanceLock <= 0 || policy.CheckInWindow <= 0 ||
		policy.TransferLock <= 0 || policy.UnitTimeout <= 0 {
		return fmt.Errorf("%w: non-positive policy window", ErrInvalidServiceConfig)
	}
	return nil
}

// EventSink receives capacity-freed notifications after the unit that freed
// the seat has committed. Delivery is at-least-once; handlers re-check
// capacity under locks.
type EventSink interface {
	CapacityFreed(courseID string)
}

type nopSink struct{}

func (nopSink) CapacityFreed(string) {}

// Service implements the booking core on top of a Store.
type Service struct {
	store  Store
	nowFn  func() time.Time
	newID  func() string
	logger *zap.Logger
	events EventSink
	policy Policy
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithLogger overrides the no-op logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventSink routes capacity-freed events to sink.
func WithEventSink(sink EventSink) ServiceOption {
	return func(service *Service) {
		service.events = sink
	}
}

// WithPolicy overrides the default windows.
func WithPolicy(policy Policy) ServiceOption {
	return func(service *Service) {
		service.policy = policy
	}
}

// WithIDGenerator overrides the uuid generator, mainly for tests.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(service *Service) {
		service.newID = newID
	}
}

// NewService builds a Service around the store and clock.
func NewService(store Store, nowFn func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidServiceConfig)
	}
	if nowFn == nil {
		return nil, fmt.Errorf("%w: nil clock", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:  store,
		nowFn:  nowFn,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
		events: nopSink{},
		policy: DefaultPolicy(),
	}
	for _, option := range options {
		option(service)
	}
	if service.newID == nil || service.logger == nil || service.events == nil {
		return nil, fmt.Errorf("%w: nil option value", ErrInvalidServiceConfig)
	}
	if err := service.policy.validate(); err != nil {
		return nil, err
	}
	return service, nil
}

func (service *Service) withUnit(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	unitCtx, cancel := context.WithTimeout(ctx, service.policy.UnitTimeout)
	defer cancel()
	return service.store.WithTx(unitCtx, fn)
}

func (service *Service) appendAudit(ctx context.Context, txStore Store, ledgerID string, amount points.Amount, kind points.AuditKind, relatedID string, notes string) error {
	entry, err := points.NewAuditEntry(service.newID(), ledgerID, amount, kind, relatedID, notes, service.nowFn())
	if err != nil {
		return err
	}
	return txStore.AppendAudit(ctx, entry)
}

// CreateRequest asks for one booking per participant on a course.
type CreateRequest struct {
	CourseID      string
	Participants  []Participant
	ForceOverride bool
}

// CreateResult reports the outcome for one participant. Rejected results
// carry a Reason and no booking id.
type CreateResult struct {
	BookingID   string
	Status      BookingStatus
	WaitingRank int
	Rejected    bool
	Reason      string
}

// Create books the course for each participant. Conflicting bookings fail
// the whole request unless ForceOverride cancels them first. Within one
// request, participants are admitted in order: seats while capacity lasts,
// then timed waitlist reservations, and each participant without points is
// rejected individually without failing the others.
func (service *Service) Create(ctx context.Context, capability Capability, request CreateRequest) ([]CreateResult, error) {
	if capability.MemberID == "" {
		return nil, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if request.CourseID == "" {
		return nil, fmt.Errorf("%w: empty course id", ErrValidation)
	}
	if len(request.Participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrValidation)
	}

	var results []CreateResult
	var freedCourses []string
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		results = nil
		freedCourses = nil

		peek, err := txStore.GetCourse(ctx, request.CourseID)
		if err != nil {
			return err
		}
		if peek.Status != CourseScheduled {
			return fmt.Errorf("%w: course is %s", ErrInvalidState, peek.Status)
		}

		overlapping, err := txStore.ListActiveOverlapping(ctx, capability.MemberID, peek.StartTime, peek.EndTime)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 && !request.ForceOverride {
			ids := make([]string, 0, len(overlapping))
			for _, conflicting := range overlapping {
				ids = append(ids, conflicting.BookingID)
			}
			return NewConflictError(ids)
		}

		// Every course row involved is locked before the ledger, in id
		// order, so crosswise overrides by two members cannot deadlock.
		courseIDs := []string{request.CourseID}
		seen := map[string]bool{request.CourseID: true}
		for _, conflicting := range overlapping {
			if !seen[conflicting.CourseID] {
				seen[conflicting.CourseID] = true
				courseIDs = append(courseIDs, conflicting.CourseID)
			}
		}
		sort.Strings(courseIDs)
		lockedCourses := make(map[string]*Course, len(courseIDs))
		for _, courseID := range courseIDs {
			held, err := txStore.GetCourseForUpdate(ctx, courseID)
			if err != nil {
				return err
			}
			lockedCourses[courseID] = &held
		}
		course := lockedCourses[request.CourseID]
		if course.Status != CourseScheduled {
			return fmt.Errorf("%w: course is %s", ErrInvalidState, course.Status)
		}
		ledger, err := txStore.GetLedgerForUpdate(ctx, capability.MemberID)
		if err != nil {
			return err
		}

		for _, conflicting := range overlapping {
			target, err := txStore.GetBookingForUpdate(ctx, conflicting.BookingID)
			if err != nil {
				return err
			}
			outcome, err := service.settleCancel(ctx, txStore, lockedCourses[target.CourseID], &ledger, target, StatusCancelled)
			if err != nil {
				return err
			}
			if outcome.freedCourseID != "" {
				freedCourses = append(freedCourses, outcome.freedCourseID)
			}
		}

		now := service.nowFn()
		for _, participant := range request.Participants {
			if ledger.Remaining < course.RequiredPoints {
				results = append(results, CreateResult{
					Rejected: true,
					Reason:   "insufficient balance",
				})
				continue
			}

			created := Booking{
				BookingID:      service.newID(),
				MemberID:       capability.MemberID,
				CourseID:       course.CourseID,
				PointsReserved: course.RequiredPoints,
				Participant:    participant,
				CreatedAt:      now,
			}
			if course.ConfirmedCount < course.Capacity {
				if err := ledger.Debit(course.RequiredPoints); err != nil {
					return err
				}
				course.ConfirmedCount++
				created.Status = StatusConfirmed
				if err := service.appendAudit(ctx, txStore, ledger.LedgerID, -course.RequiredPoints, points.AuditBookingConfirmed, created.BookingID, course.Name); err != nil {
					return err
				}
			} else {
				if err := ledger.Reserve(course.RequiredPoints); err != nil {
					return err
				}
				if course.NextWaitingRank == 0 {
					course.NextWaitingRank = 1
				}
				created.Status = StatusReserved
				created.WaitingRank = course.NextWaitingRank
				course.NextWaitingRank++
				lockExpiry := now.Add(service.policy.ReservationTimeout)
				created.LockExpiry = &lockExpiry
				if err := service.appendAudit(ctx, txStore, ledger.LedgerID, -course.RequiredPoints, points.AuditBookingLocked, created.BookingID, course.Name); err != nil {
					return err
				}
			}
			if err := txStore.CreateBooking(ctx, created); err != nil {
				return err
			}
			results = append(results, CreateResult{
				BookingID:   created.BookingID,
				Status:      created.Status,
				WaitingRank: created.WaitingRank,
			})
		}

		if err := txStore.SaveLedger(ctx, ledger); err != nil {
			return err
		}
		for _, courseID := range courseIDs {
			if err := txStore.SaveCourse(ctx, *lockedCourses[courseID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, courseID := range freedCourses {
		service.events.CapacityFreed(courseID)
	}
	return results, nil
}

type cancelOutcome struct {
	refund        points.Amount
	freedCourseID string
}

// cancelLocked cancels one booking inside an open transaction, acquiring
// Course, Ledger, Booking in canonical order. terminal must be one of the
// three cancelled statuses.
func (service *Service) cancelLocked(ctx context.Context, txStore Store, bookingID string, capability Capability, bypassDeadline bool, terminal BookingStatus) (cancelOutcome, error) {
	peek, err := txStore.GetBooking(ctx, bookingID)
	if err != nil {
		return cancelOutcome{}, err
	}
	if !capability.Allows(peek.MemberID) {
		return cancelOutcome{}, fmt.Errorf("%w: booking %s", ErrForbidden, bookingID)
	}

	course, err := txStore.GetCourseForUpdate(ctx, peek.CourseID)
	if err != nil {
		return cancelOutcome{}, err
	}
	ledger, err := txStore.GetLedgerForUpdate(ctx, peek.MemberID)
	if err != nil {
		return cancelOutcome{}, err
	}
	target, err := txStore.GetBookingForUpdate(ctx, bookingID)
	if err != nil {
		return cancelOutcome{}, err
	}
	if target.Status.Terminal() {
		return cancelOutcome{}, fmt.Errorf("%w: booking already %s", ErrInvalidState, target.Status)
	}

	if !bypassDeadline {
		deadline := course.StartTime.Add(-service.policy.CancellationWindow)
		if service.nowFn().After(deadline) {
			return cancelOutcome{}, fmt.Errorf("%w: deadline was %s", ErrDeadlinePassed, deadline.Format(time.RFC3339))
		}
	}

	outcome, err := service.settleCancel(ctx, txStore, &course, &ledger, target, terminal)
	if err != nil {
		return cancelOutcome{}, err
	}
	if err := txStore.SaveCourse(ctx, course); err != nil {
		return cancelOutcome{}, err
	}
	if err := txStore.SaveLedger(ctx, ledger); err != nil {
		return cancelOutcome{}, err
	}
	return outcome, nil
}

// settleCancel moves one already-locked booking to a terminal cancelled
// status, returning its points against the already-locked ledger and
// course. The caller saves the course and ledger rows.
func (service *Service) settleCancel(ctx context.Context, txStore Store, course *Course, ledger *points.Ledger, target Booking, terminal BookingStatus) (cancelOutcome, error) {
	outcome := cancelOutcome{}
	switch target.Status {
	case StatusConfirmed:
		if course.ConfirmedCount <= 0 {
			return cancelOutcome{}, fmt.Errorf("%w: confirmed count underflow on course %s", points.ErrDataIntegrity, course.CourseID)
		}
		if err := ledger.Refund(target.PointsReserved); err != nil {
			return cancelOutcome{}, err
		}
		course.ConfirmedCount--
		outcome.refund = target.PointsReserved
		outcome.freedCourseID = course.CourseID
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, target.PointsReserved, points.AuditCancellationRefund, target.BookingID, course.Name); err != nil {
			return cancelOutcome{}, err
		}
	case StatusReserved:
		if err := ledger.Release(target.PointsReserved); err != nil {
			return cancelOutcome{}, err
		}
		outcome.refund = target.PointsReserved
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, target.PointsReserved, points.AuditUnlockedCancellation, target.BookingID, course.Name); err != nil {
			return cancelOutcome{}, err
		}
	default:
		return cancelOutcome{}, fmt.Errorf("%w: booking is %s", ErrInvalidState, target.Status)
	}

	now := service.nowFn()
	target.Status = terminal
	target.CancelledAt = &now
	target.WaitingRank = 0
	target.LockExpiry = nil
	if err := txStore.SaveBooking(ctx, target); err != nil {
		return cancelOutcome{}, err
	}
	return outcome, nil
}

// Cancel cancels a booking on behalf of its owner, or of an admin acting on
// any member. Owner cancellation honors the cancellation window; admin
// cancellation bypasses it and lands in CANCELLED_BY_ADMIN.
func (service *Service) Cancel(ctx context.Context, capability Capability, bookingID string) (points.Amount, error) {
	if bookingID == "" {
		return 0, fmt.Errorf("%w: empty booking id", ErrValidation)
	}
	var outcome cancelOutcome
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		peek, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		terminal := StatusCancelled
		bypass := false
		if capability.Admin && peek.MemberID != capability.MemberID {
			terminal = StatusCancelledByAdmin
			bypass = true
		}
		outcome, err = service.cancelLocked(ctx, txStore, bookingID, capability, bypass, terminal)
		return err
	})
	if err != nil {
		return 0, err
	}
	if outcome.freedCourseID != "" {
		service.events.CapacityFreed(outcome.freedCourseID)
	}
	return outcome.refund, nil
}

// GetBooking returns a booking visible to the capability.
func (service *Service) GetBooking(ctx context.Context, capability Capability, bookingID string) (Booking, error) {
	found, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !capability.Allows(found.MemberID) {
		return Booking{}, fmt.Errorf("%w: booking %s", ErrForbidden, bookingID)
	}
	return found, nil
}

// ListBookings returns the member's bookings, newest first per store order.
func (service *Service) ListBookings(ctx context.Context, capability Capability, memberID string) ([]Booking, error) {
	if !capability.Allows(memberID) {
		return nil, fmt.Errorf("%w: member %s", ErrForbidden, memberID)
	}
	return service.store.ListBookingsByMember(ctx, memberID)
}

// CreateCourse registers a new scheduled course. Admin only.
func (service *Service) CreateCourse(ctx context.Context, capability Capability, course Course) (Course, error) {
	if !capability.Admin {
		return Course{}, fmt.Errorf("%w: admin required", ErrForbidden)
	}
	if course.CourseID == "" {
		course.CourseID = service.newID()
	}
	if course.Capacity <= 0 {
		return Course{}, fmt.Errorf("%w: non-positive capacity", ErrValidation)
	}
	if course.MinCapacity < 0 || course.MinCapacity > course.Capacity {
		return Course{}, fmt.Errorf("%w: min capacity out of range", ErrValidation)
	}
	if course.RequiredPoints <= 0 {
		return Course{}, fmt.Errorf("%w: non-positive required points", ErrValidation)
	}
	if !course.EndTime.After(course.StartTime) {
		return Course{}, fmt.Errorf("%w: end not after start", ErrValidation)
	}
	course.Status = CourseScheduled
	course.ConfirmedCount = 0
	course.NextWaitingRank = 1
	course.Confirmed = false
	if err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.CreateCourse(ctx, course)
	}); err != nil {
		return Course{}, err
	}
	return course, nil
}

// GetCourse returns a course by id.
func (service *Service) GetCourse(ctx context.Context, courseID string) (Course, error) {
	return service.store.GetCourse(ctx, courseID)
}
