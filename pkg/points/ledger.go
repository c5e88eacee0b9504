package points

import "fmt"

// Reserve moves amount from the remaining balance into the locked balance.
func (ledger *Ledger) Reserve(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if ledger.Remaining < amount {
		return fmt.Errorf("%w: reserve %d exceeds remaining %d", ErrInsufficientBalance, amount, ledger.Remaining)
	}
	ledger.Remaining -= amount
	ledger.Locked += amount
	return nil
}

// Commit consumes amount from the locked balance. The funds leave the
// account; nothing returns to remaining. A locked balance smaller than
// amount is an integrity violation, never floored to zero.
func (ledger *Ledger) Commit(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if ledger.Locked < amount {
		return fmt.Errorf("%w: commit %d exceeds locked %d", ErrDataIntegrity, amount, ledger.Locked)
	}
	ledger.Locked -= amount
	return nil
}

// Release returns amount from the locked balance to the remaining balance.
func (ledger *Ledger) Release(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if ledger.Locked < amount {
		return fmt.Errorf("%w: release %d exceeds locked %d", ErrDataIntegrity, amount, ledger.Locked)
	}
	ledger.Locked -= amount
	ledger.Remaining += amount
	return nil
}

// Debit spends amount from the remaining balance with no lock phase.
func (ledger *Ledger) Debit(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if ledger.Remaining < amount {
		return fmt.Errorf("%w: debit %d exceeds remaining %d", ErrInsufficientBalance, amount, ledger.Remaining)
	}
	ledger.Remaining -= amount
	return nil
}

// Credit grants amount to the remaining balance and bumps the lifetime
// total.
func (ledger *Ledger) Credit(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	ledger.Remaining += amount
	ledger.Total += amount
	return nil
}

// Refund returns previously debited funds to the remaining balance without
// touching the lifetime total. Used for cancellation refunds.
func (ledger *Ledger) Refund(amount Amount) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	ledger.Remaining += amount
	return nil
}

// DebitWithSpill removes amount for an administrative correction. The
// remaining balance is drained first; any shortfall spills into the locked
// balance. The lifetime total shrinks by the full amount. The returned
// spill tells the caller how much locked collateral was consumed so it can
// cascade-cancel the reservations that depended on it.
func (ledger *Ledger) DebitWithSpill(amount Amount) (Amount, error) {
	if err := validateAmount(amount); err != nil {
		return 0, err
	}
	if ledger.Remaining+ledger.Locked < amount {
		return 0, fmt.Errorf("%w: deduct %d exceeds remaining %d plus locked %d",
			ErrInsufficientBalance, amount, ledger.Remaining, ledger.Locked)
	}
	var spilled Amount
	if ledger.Remaining >= amount {
		ledger.Remaining -= amount
	} else {
		spilled = amount - ledger.Remaining
		ledger.Remaining = 0
		ledger.Locked -= spilled
	}
	ledger.Total -= amount
	return spilled, nil
}
