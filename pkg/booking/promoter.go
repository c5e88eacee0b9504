package booking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// PromoteNext promotes the lowest-rank RESERVED booking on the course into
// a freed seat. Promotion commits the locked points and confirms the
// booking; a ledger whose locked balance cannot cover the reservation marks
// the booking PROMOTION_FAILED instead of corrupting the seat count. One
// call promotes at most one booking; the returned flag reports whether a
// seat was filled. Safe to call when no seat is actually free.
func (service *Service) PromoteNext(ctx context.Context, courseID string) (bool, error) {
	if courseID == "" {
		return false, fmt.Errorf("%w: empty course id", ErrValidation)
	}
	promoted := false
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		promoted = false
		course, err := txStore.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		if course.Status != CourseScheduled || course.ConfirmedCount >= course.Capacity {
			return nil
		}

		next, err := txStore.NextReserved(ctx, courseID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ledger, err := txStore.GetLedgerForUpdate(ctx, next.MemberID)
		if err != nil {
			return err
		}
		target, err := txStore.GetBookingForUpdate(ctx, next.BookingID)
		if err != nil {
			return err
		}
		if target.Status != StatusReserved {
			return nil
		}

		if commitErr := ledger.Commit(target.PointsReserved); commitErr != nil {
			service.logger.Error("waitlist promotion integrity failure",
				zap.String("booking_id", target.BookingID),
				zap.String("ledger_id", ledger.LedgerID),
				zap.Error(commitErr))
			target.Status = StatusPromotionFailed
			target.WaitingRank = 0
			target.LockExpiry = nil
			return txStore.SaveBooking(ctx, target)
		}

		course.ConfirmedCount++
		target.Status = StatusConfirmed
		target.WaitingRank = 0
		target.LockExpiry = nil
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, -target.PointsReserved, points.AuditWaitlistConfirmed, target.BookingID, course.Name); err != nil {
			return err
		}
		if err := txStore.SaveBooking(ctx, target); err != nil {
			return err
		}
		if err := txStore.SaveCourse(ctx, course); err != nil {
			return err
		}
		if err := txStore.SaveLedger(ctx, ledger); err != nil {
			return err
		}
		promoted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return promoted, nil
}

// PromoteAvailable keeps promoting until the course is full or the
// waitlist is drained. Used by the capacity-freed event handler so one
// freed seat also covers any backlog from earlier missed events.
func (service *Service) PromoteAvailable(ctx context.Context, courseID string) (int, error) {
	count := 0
	for {
		promoted, err := service.PromoteNext(ctx, courseID)
		if err != nil {
			return count, err
		}
		if !promoted {
			return count, nil
		}
		count++
	}
}
