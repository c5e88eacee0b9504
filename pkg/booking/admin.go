package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// AdjustPoints applies an admin grant or deduction to a member's ledger.
// A deduction larger than the spendable balance spills into locked points;
// the spill cancels every RESERVED booking of the member, returning to the
// spendable balance whatever locked cover is left for each one.
func (service *Service) AdjustPoints(ctx context.Context, capability Capability, memberID string, delta points.Amount, notes string) (points.Ledger, error) {
	if !capability.Admin {
		return points.Ledger{}, fmt.Errorf("%w: admin required", ErrForbidden)
	}
	if memberID == "" {
		return points.Ledger{}, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if delta == 0 {
		return points.Ledger{}, fmt.Errorf("%w: zero delta", ErrValidation)
	}

	var adjusted points.Ledger
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		ledger, err := txStore.GetLedgerForUpdate(ctx, memberID)
		if err != nil {
			return err
		}

		if delta > 0 {
			if err := ledger.Credit(delta); err != nil {
				return err
			}
			if err := service.appendAudit(ctx, txStore, ledger.LedgerID, delta, points.AuditAdminAdjustAdd, memberID, notes); err != nil {
				return err
			}
			adjusted = ledger
			return txStore.SaveLedger(ctx, ledger)
		}

		amount := -delta
		spilled, err := ledger.DebitWithSpill(amount)
		if err != nil {
			return err
		}
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, -amount, points.AuditAdminAdjustDeduct, memberID, notes); err != nil {
			return err
		}
		if spilled > 0 {
			service.logger.Warn("admin deduction spilled into locked points",
				zap.String("member_id", memberID),
				zap.Int64("spilled", spilled.Int64()))
			if err := service.cleanupReserved(ctx, txStore, &ledger, memberID, spilled); err != nil {
				return err
			}
		}
		adjusted = ledger
		return txStore.SaveLedger(ctx, ledger)
	})
	if err != nil {
		return points.Ledger{}, err
	}
	return adjusted, nil
}

// cleanupReserved cancels the member's RESERVED bookings after a deduction
// consumed part of their locked cover. The spill is charged against the
// bookings' own cover, so locked points backing transfer escrows stay put.
// Each booking gets back what the spill left of its cover, possibly zero.
func (service *Service) cleanupReserved(ctx context.Context, txStore Store, ledger *points.Ledger, memberID string, spilled points.Amount) error {
	reserved, err := txStore.ListReservedByMember(ctx, memberID)
	if err != nil {
		return err
	}
	now := service.nowFn()
	remainingSpill := spilled
	for _, stale := range reserved {
		target, err := txStore.GetBookingForUpdate(ctx, stale.BookingID)
		if err != nil {
			return err
		}
		if target.Status != StatusReserved {
			continue
		}
		consumed := remainingSpill
		if consumed > target.PointsReserved {
			consumed = target.PointsReserved
		}
		remainingSpill -= consumed
		refund := target.PointsReserved - consumed
		if refund > 0 {
			if err := ledger.Release(refund); err != nil {
				return err
			}
		}
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, refund, points.AuditAdminWaitlistCleanup, target.BookingID, ""); err != nil {
			return err
		}
		target.Status = StatusCancelledByAdmin
		target.CancelledAt = &now
		target.WaitingRank = 0
		target.LockExpiry = nil
		if err := txStore.SaveBooking(ctx, target); err != nil {
			return err
		}
	}
	return nil
}
