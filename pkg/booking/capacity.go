package booking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// CapacityReport summarizes one minimum-capacity sweep.
type CapacityReport struct {
	Confirmed int
	Cancelled int
}

// ConfirmMinimumCapacity inspects unconfirmed courses starting tomorrow.
// Courses that reached their minimum are marked confirmed; the rest are
// cancelled with every open booking refunded in full, confirmed seats
// included. Each course is its own atomic unit.
func (service *Service) ConfirmMinimumCapacity(ctx context.Context) (CapacityReport, error) {
	now := service.nowFn()
	year, month, day := now.Date()
	from := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	pending, err := service.store.ListCoursesAwaitingConfirmation(ctx, from, to)
	if err != nil {
		return CapacityReport{}, err
	}
	report := CapacityReport{}
	for _, course := range pending {
		cancelled, err := service.confirmOne(ctx, course.CourseID)
		if err != nil {
			service.logger.Error("minimum capacity check",
				zap.String("course_id", course.CourseID),
				zap.Error(err))
			continue
		}
		if cancelled {
			report.Cancelled++
		} else {
			report.Confirmed++
		}
	}
	return report, nil
}

func (service *Service) confirmOne(ctx context.Context, courseID string) (bool, error) {
	cancelled := false
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		cancelled = false
		course, err := txStore.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		if course.Status != CourseScheduled || course.Confirmed {
			return nil
		}

		if course.ConfirmedCount >= course.MinCapacity {
			course.Confirmed = true
			return txStore.SaveCourse(ctx, course)
		}

		open, err := txStore.ListOpenByCourse(ctx, courseID)
		if err != nil {
			return err
		}
		now := service.nowFn()
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
				if err := ledger.Refund(target.PointsReserved); err != nil {
					return err
				}
				course.ConfirmedCount--
			case StatusReserved:
				if err := ledger.Release(target.PointsReserved); err != nil {
					return err
				}
			default:
				continue
			}
			if err := service.appendAudit(ctx, txStore, ledger.LedgerID, target.PointsReserved, points.AuditCapacityCancelled, target.BookingID, course.Name); err != nil {
				return err
			}
			target.Status = StatusCancelledBySystem
			target.CancelledAt = &now
			target.WaitingRank = 0
			target.LockExpiry = nil
			if err := txStore.SaveBooking(ctx, target); err != nil {
				return err
			}
			if err := txStore.SaveLedger(ctx, ledger); err != nil {
				return err
			}
		}

		course.Status = CourseCancelled
		course.Confirmed = true
		cancelled = true
		return txStore.SaveCourse(ctx, course)
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}
