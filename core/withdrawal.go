package core

import "fmt"

// Withdraw pays out call.Caller's whole ledger balance through t.
//
// The balance is zeroed before the transfer is attempted, so a re-entrant
// Withdraw issued from inside the transfer finds nothing to pay. If the
// transfer fails the balance is restored and false is returned without an
// event. A zero balance returns false without touching state.
//
// The returned error is non-nil only when the restore itself overflows; the
// host must then roll the call back.
func (a *Auction) Withdraw(call Call, t Transferrer) (bool, error) {
	participant := call.Caller

	amount := a.ledger.BalanceOf(participant)
	if amount == 0 {
		return false, nil
	}

	a.ledger.Zero(participant)

	if err := t.Transfer(participant, amount); err != nil {
		if restoreErr := a.ledger.Restore(participant, amount); restoreErr != nil {
			return false, fmt.Errorf("roll back failed withdrawal (%v): %w", err, restoreErr)
		}
		return false, nil
	}

	a.sink.Emit(Withdrawal{Participant: participant, Amount: amount})
	return true, nil
}
