package booking

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/bookings/pkg/points"
)

// InitiateTransfer locks amount points out of the sender's spendable
// balance into a LOCKED escrow addressed to the recipient. The escrow must
// be executed before its expiry or cancelled by the sender.
func (service *Service) InitiateTransfer(ctx context.Context, capability Capability, recipientMemberID string, amount points.Amount) (TransferEscrow, error) {
	if capability.MemberID == "" {
		return TransferEscrow{}, fmt.Errorf("%w: empty member id", ErrValidation)
	}
	if recipientMemberID == "" || recipientMemberID == capability.MemberID {
		return TransferEscrow{}, fmt.Errorf("%w: bad recipient", ErrValidation)
	}

	var created TransferEscrow
	err := service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		sender, err := txStore.GetLedgerForUpdate(ctx, capability.MemberID)
		if err != nil {
			return err
		}
		recipient, err := txStore.GetLedger(ctx, recipientMemberID)
		if err != nil {
			return err
		}
		if err := sender.Reserve(amount); err != nil {
			return err
		}

		now := service.nowFn()
		created = TransferEscrow{
			TransferID:        service.newID(),
			SenderLedgerID:    sender.LedgerID,
			RecipientLedgerID: recipient.LedgerID,
			Amount:            amount,
			Status:            EscrowLocked,
			Expiry:            now.Add(service.policy.TransferLock),
			CreatedAt:         now,
		}
		if err := service.appendAudit(ctx, txStore, sender.LedgerID, -amount, points.AuditTransferLocked, created.TransferID, ""); err != nil {
			return err
		}
		if err := txStore.CreateTransfer(ctx, created); err != nil {
			return err
		}
		return txStore.SaveLedger(ctx, sender)
	})
	if err != nil {
		return TransferEscrow{}, err
	}
	return created, nil
}

// ExecuteTransfer settles a LOCKED escrow: the sender's locked points are
// consumed and the recipient is credited. Sender only, and only before the
// escrow expiry. Both ledgers are locked in stable id order.
func (service *Service) ExecuteTransfer(ctx context.Context, capability Capability, transferID string) error {
	if transferID == "" {
		return fmt.Errorf("%w: empty transfer id", ErrValidation)
	}
	return service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		escrow, err := txStore.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if escrow.Status != EscrowLocked {
			return fmt.Errorf("%w: transfer is %s", ErrInvalidState, escrow.Status)
		}
		if service.nowFn().After(escrow.Expiry) {
			return fmt.Errorf("%w: transfer %s", ErrExpired, transferID)
		}

		sender, recipient, err := lockLedgerPair(ctx, txStore, escrow.SenderLedgerID, escrow.RecipientLedgerID)
		if err != nil {
			return err
		}
		if sender.MemberID != capability.MemberID {
			return fmt.Errorf("%w: only the sender may execute", ErrForbidden)
		}

		if err := sender.Commit(escrow.Amount); err != nil {
			return err
		}
		if err := recipient.Credit(escrow.Amount); err != nil {
			return err
		}
		if err := service.appendAudit(ctx, txStore, sender.LedgerID, -escrow.Amount, points.AuditTransferConsumed, escrow.TransferID, ""); err != nil {
			return err
		}
		if err := service.appendAudit(ctx, txStore, recipient.LedgerID, escrow.Amount, points.AuditTransferReceived, escrow.TransferID, ""); err != nil {
			return err
		}

		escrow.Status = EscrowConfirmed
		if err := txStore.SaveTransfer(ctx, escrow); err != nil {
			return err
		}
		if err := txStore.SaveLedger(ctx, sender); err != nil {
			return err
		}
		return txStore.SaveLedger(ctx, recipient)
	})
}

// CancelTransfer returns a LOCKED escrow's points to the sender's spendable
// balance. Sender only; allowed before or after expiry.
func (service *Service) CancelTransfer(ctx context.Context, capability Capability, transferID string) error {
	if transferID == "" {
		return fmt.Errorf("%w: empty transfer id", ErrValidation)
	}
	return service.withUnit(ctx, func(ctx context.Context, txStore Store) error {
		escrow, err := txStore.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if escrow.Status != EscrowLocked {
			return fmt.Errorf("%w: transfer is %s", ErrInvalidState, escrow.Status)
		}

		sender, err := txStore.GetLedgerByIDForUpdate(ctx, escrow.SenderLedgerID)
		if err != nil {
			return err
		}
		if sender.MemberID != capability.MemberID {
			return fmt.Errorf("%w: only the sender may cancel", ErrForbidden)
		}

		if err := sender.Release(escrow.Amount); err != nil {
			return err
		}
		if err := service.appendAudit(ctx, txStore, sender.LedgerID, escrow.Amount, points.AuditTransferCancelled, escrow.TransferID, ""); err != nil {
			return err
		}

		escrow.Status = EscrowCancelled
		if err := txStore.SaveTransfer(ctx, escrow); err != nil {
			return err
		}
		return txStore.SaveLedger(ctx, sender)
	})
}

// lockLedgerPair locks two ledgers in stable id order to keep concurrent
// transfers between the same pair deadlock free.
func lockLedgerPair(ctx context.Context, txStore Store, firstID string, secondID string) (points.Ledger, points.Ledger, error) {
	lowID, highID := firstID, secondID
	if highID < lowID {
		lowID, highID = highID, lowID
	}
	low, err := txStore.GetLedgerByIDForUpdate(ctx, lowID)
	if err != nil {
		return points.Ledger{}, points.Ledger{}, err
	}
	high, err := txStore.GetLedgerByIDForUpdate(ctx, highID)
	if err != nil {
		return points.Ledger{}, points.Ledger{}, err
	}
	if low.LedgerID == firstID {
		return low, high, nil
	}
	return high, low, nil
}
