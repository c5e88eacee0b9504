package booking

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// ReapExpiredReservations releases every RESERVED booking whose lock expiry
// has passed, returning the locked points and moving the booking to
// CANCELLED_BY_SYSTEM. Each booking is its own atomic unit so one failure
// never blocks the rest of the sweep. Returns the number reaped.
func (service *Service) ReapExpiredReservations(ctx context.Context) (int, error) {
	expired, err := service.store.ListReservedExpired(ctx, service.nowFn())
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, stale := range expired {
		if err := service.reapOne(ctx, stale.BookingID); err != nil {
			service.logger.Error("release expired reservation",
				zap.String("booking_id", stale.BookingID),
				zap.Error(err))
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (service *Service) reapOne(ctx context.Context, bookingID string) error {
	return service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		peek, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		ledger, err := txStore.GetLedgerForUpdate(ctx, peek.MemberID)
		if err != nil {
			return err
		}
		target, err := txStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		// Re-validate under the lock; a concurrent promotion or cancel
		// may have won.
		now := service.nowFn()
		if target.Status != StatusReserved || target.LockExpiry == nil || target.LockExpiry.After(now) {
			return nil
		}

		if err := ledger.Release(target.PointsReserved); err != nil {
			return err
		}
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, target.PointsReserved, points.AuditLockedTimeoutRelease, target.BookingID, ""); err != nil {
			return err
		}
		target.Status = StatusCancelledBySystem
		target.CancelledAt = &now
		target.WaitingRank = 0
		target.LockExpiry = nil
		if err := txStore.SaveBooking(ctx, target); err != nil {
			return err
		}
		return txStore.SaveLedger(ctx, ledger)
	})
}
