package booking

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// RegisterMember opens a ledger for a new member, optionally seeded with a
// starting grant.
func (service *Service) RegisterMember(ctx context.Context, memberID string, startingGrant points.Amount) (points.Ledger, error) {
	if memberID == "" {
		return points.Ledger{}, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if startingGrant < 0 {
		return points.Ledger{}, fmt.Errorf("%w: negative grant", ErrValidation)
	}

	var created points.Ledger
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		ledger, err := points.NewLedger(service.newID(), memberID, service.nowFn())
		if err != nil {
			return err
		}
		if startingGrant > 0 {
			if err := ledger.Credit(startingGrant); err != nil {
				return err
			}
		}
		if err := txStore.CreateLedger(ctx, ledger); err != nil {
			return err
		}
		if startingGrant > 0 {
			if err := service.appendAudit(ctx, txStore, ledger.LedgerID, startingGrant, points.AuditStartingGrant, memberID, ""); err != nil {
				return err
			}
		}
		created = ledger
		return nil
	})
	if err != nil {
		return points.Ledger{}, err
	}
	return created, nil
}

// Balance returns the member's ledger.
func (service *Service) Balance(ctx context.Context, capability Capability, memberID string) (points.Ledger, error) {
	if !capability.Allows(memberID) {
		return points.Ledger{}, fmt.Errorf("%w: member %s", ErrForbidden, memberID)
	}
	return service.store.GetLedger(ctx, memberID)
}

// History returns the member's audit entries, newest first per store order.
func (service *Service) History(ctx context.Context, capability Capability, memberID string, filter AuditFilter) ([]points.AuditEntry, error) {
	if !capability.Allows(memberID) {
		return nil, fmt.Errorf("%w: member %s", ErrForbidden, memberID)
	}
	ledger, err := service.store.GetLedger(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return service.store.ListAudit(ctx, ledger.LedgerID, filter)
}

// InitiatePurchase opens a PENDING payment transaction for a point package.
// The external gateway settles it through CompletePurchase.
func (service *Service) InitiatePurchase(ctx context.Context, capability Capability, amountCents int64, grantedPoints points.Amount, planName string) (Purchase, error) {
	if capability.MemberID == "" {
		return Purchase{}, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if amountCents <= 0 || grantedPoints <= 0 {
		return Purchase{}, fmt.Errorf("%w: non-positive purchase", ErrValidation)
	}

	purchase := Purchase{
		TransactionID: service.newID(),
		MemberID:      capability.MemberID,
		AmountCents:   amountCents,
		Points:        grantedPoints,
		Status:        PurchasePending,
		Description:   fmt.Sprintf("point package %s", planName),
		CreatedAt:     service.nowFn(),
	}
	if err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.CreatePurchase(ctx, purchase)
	}); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// CompletePurchase settles a PENDING transaction from the gateway callback.
// Success credits the purchased points exactly once; duplicate callbacks on
// a settled transaction are no-ops.
func (service *Service) CompletePurchase(ctx context.Context, transactionID string, succeeded bool) error {
	if transactionID == "" {
		return fmt.Errorf("%w: empty transaction id", ErrValidation)
	}
	return service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		purchase, err := txStore.GetPurchaseForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if purchase.Status != PurchasePending {
			return nil
		}
		if !succeeded {
			purchase.Status = PurchaseFailed
			return txStore.SavePurchase(ctx, purchase)
		}

		ledger, err := txStore.GetLedgerForUpdate(ctx, purchase.MemberID)
		if err != nil {
			return err
		}
		if err := ledger.Credit(purchase.Points); err != nil {
			return err
		}
		ledger.PurchaseCents += purchase.AmountCents
		if err := service.appendAudit(ctx, txStore, ledger.LedgerID, purchase.Points, points.AuditPointPurchase, purchase.TransactionID, purchase.Description); err != nil {
			return err
		}
		purchase.Status = PurchasePaid
		if err := txStore.SavePurchase(ctx, purchase); err != nil {
			return err
		}
		return txStore.SaveLedger(ctx, ledger)
	})
}
