package common

import (
	"fmt"
	"math/big"

	"trustescrow/core/types"
)

// AccountStore is the slice of the state manager the value-moving helpers
// need.
type AccountStore interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(account *types.Account) error
}

// LockFunds moves amount from the owner's available bucket into custody.
func LockFunds(store AccountStore, owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	account, err := store.GetAccount(owner)
	if err != nil {
		return err
	}
	account.EnsureDefaults()
	if account.Available.Cmp(amount) < 0 {
		return Wrapf(ErrInsufficientBalance, "have %s, need %s", account.Available, amount)
	}
	account.Available = new(big.Int).Sub(account.Available, amount)
	account.Locked = new(big.Int).Add(account.Locked, amount)
	return store.PutAccount(account)
}

// PayOut moves amount out of custody held for owner into the recipient's
// available bucket. When owner and recipient are the same address the value
// is simply unlocked.
func PayOut(store AccountStore, owner, recipient [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return Wrapf(ErrInvariantViolation, "negative payout %s", amount)
	}
	from, err := store.GetAccount(owner)
	if err != nil {
		return err
	}
	from.EnsureDefaults()
	if from.Locked.Cmp(amount) < 0 {
		return Wrapf(ErrInvariantViolation, "custody for %x holds %s, payout %s", owner, from.Locked, amount)
	}
	from.Locked = new(big.Int).Sub(from.Locked, amount)
	if owner == recipient {
		from.Available = new(big.Int).Add(from.Available, amount)
		return store.PutAccount(from)
	}
	if err := store.PutAccount(from); err != nil {
		return err
	}
	to, err := store.GetAccount(recipient)
	if err != nil {
		return err
	}
	to.EnsureDefaults()
	to.Available = new(big.Int).Add(to.Available, amount)
	if err := store.PutAccount(to); err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}
	return nil
}
