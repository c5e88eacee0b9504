package booking

import (
	"context"
	"errors"
	"fmt"
)

// AttendanceUpdate marks one booking ATTENDED or NO_SHOW.
type AttendanceUpdate struct {
	BookingID string
	Status    BookingStatus
}

// AttendanceResult reports the per-booking outcome of MarkAttendance.
type AttendanceResult struct {
	BookingID string
	Applied   bool
	Reason    string
}

// MarkAttendance lets the course's coach settle CONFIRMED bookings inside
// the check-in window, from shortly before start until the attendance lock
// after end. Bad individual updates are reported per booking; only the
// course-level failures abort the call.
func (service *Service) MarkAttendance(ctx context.Context, capability Capability, courseID string, updates []AttendanceUpdate) ([]AttendanceResult, error) {
	if !capability.Coach {
		return nil, fmt.Errorf("%w: coach required", ErrForbidden)
	}
	if courseID == "" {
		return nil, fmt.Errorf("%w: empty course id", ErrValidation)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updates", ErrValidation)
	}
	for _, update := range updates {
		if update.Status != StatusAttended && update.Status != StatusNoShow {
			return nil, fmt.Errorf("%w: status %s not allowed", ErrValidation, update.Status)
		}
	}

	var results []AttendanceResult
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		results = nil
		course, err := txStore.GetCourseForUpdate(ctx, courseID)
		if err != nil {
			return err
		}
		if course.CoachID != "" && course.CoachID != capability.MemberID {
			return fmt.Errorf("%w: not the course coach", ErrForbidden)
		}
		now := service.nowFn()
		if now.Before(course.StartTime.Add(-service.policy.CheckInWindow)) {
			return fmt.Errorf("%w: not open yet", ErrAttendanceWindow)
		}
		if now.After(course.EndTime.Add(service.policy.AttendanceLock)) {
			return fmt.Errorf("%w: closed", ErrAttendanceWindow)
		}

		for _, update := range updates {
			target, err := txStore.GetBookingForUpdate(ctx, update.BookingID)
			if errors.Is(err, ErrNotFound) {
				results = append(results, AttendanceResult{BookingID: update.BookingID, Reason: "not found"})
				continue
			}
			if err != nil {
				return err
			}
			if target.CourseID != courseID {
				results = append(results, AttendanceResult{BookingID: update.BookingID, Reason: "different course"})
				continue
			}
			if target.Status != StatusConfirmed {
				results = append(results, AttendanceResult{BookingID: update.BookingID, Reason: fmt.Sprintf("booking is %s", target.Status)})
				continue
			}
			target.Status = update.Status
			target.AttendedAt = &now
			if err := txStore.SaveBooking(ctx, target); err != nil {
				return err
			}
			results = append(results, AttendanceResult{BookingID: update.BookingID, Applied: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
