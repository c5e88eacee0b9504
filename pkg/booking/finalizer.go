package booking

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// FinalizeEndedCourses settles every course whose attendance window has
// closed: CONFIRMED bookings the coach never marked become NO_SHOW with
// points consumed, RESERVED stragglers get their points released and land
// in CANCELLED_BY_SYSTEM, and the course moves to COMPLETED. Each course is
// its own atomic unit. Returns the number of courses finalized.
func (service *Service) FinalizeEndedCourses(ctx context.Context) (int, error) {
	cutoff := service.nowFn().Add(-service.policy.AttendanceLock)
	ended, err := service.store.ListCoursesToFinalize(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, course := range ended {
		if err := service.finalizeOne(ctx, course.CourseID); err != nil {
			service.logger.Error("finalize course",
				zap.String("course_id", course.CourseID),
				zap.Error(err))
			continue
		}
		finalized++
	}
	return finalized, nil
}

func (service *Service) finalizeOne(ctx context.Context, courseID string) error {
	return service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		course, err := txStore.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if course.Status != CourseScheduled || course.EndTime.Add(service.policy.AttendanceLock).After(now) {
			return nil
		}

		open, err := txStore.ListOpenByCourse(ctx, courseID)
		if err != nil {
			return err
		}
		for _, stale := range open {
			ledger, err := txStore.GetLedgerForUpdate(ctx, stale.MemberID)
			if err != nil {
				return err
			}
			target, err := txStore.GetBookingForUpdate(ctx, stale.BookingID)
			if err != nil {
				return err
			}
			switch target.Status {
			case StatusConfirmed:
				// Points were consumed at confirmation; record the
				// no-show as a zero movement.
				target.Status = StatusNoShow
				if err := service.appendAudit(ctx, txStore, ledger.LedgerID, 0, points.AuditNoShow, target.BookingID, course.Name); err != nil {
					return err
				}
			case StatusReserved:
				if err := ledger.Release(target.PointsReserved); err != nil {
					return err
				}
				if err := service.appendAudit(ctx, txStore, ledger.LedgerID, target.PointsReserved, points.AuditUnlockedFinalized, target.BookingID, course.Name); err != nil {
					return err
				}
				target.Status = StatusCancelledBySystem
				target.CancelledAt = &now
				target.WaitingRank = 0
				target.LockExpiry = nil
				if err := txStore.SaveLedger(ctx, ledger); err != nil {
					return err
				}
			default:
				continue
			}
			if err := txStore.SaveBooking(ctx, target); err != nil {
				return err
			}
		}

		course.Status = CourseCompleted
		return txStore.SaveCourse(ctx, course)
	})
}
