package state

import (
	"fmt"
	"math/big"

	"trustescrow/core/types"
	"trustescrow/native/common"
)

// ErrInvalidDeposit is returned for non-positive deposits.
var ErrInvalidDeposit = common.NewError(common.KindValidation, "InvalidAmount", "state: deposit amount must be positive")

type storedAccount struct {
	Address   [20]byte
	Nonce     uint64
	Available *big.Int
	Locked    *big.Int
}

// GetAccount returns the account stored under addr. Unknown addresses yield a
// zero-balance account.
func (tx *Tx) GetAccount(addr [20]byte) (*types.Account, error) {
	if addr == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	var stored storedAccount
	ok, err := tx.KVGet(AccountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{Address: addr}
	if ok {
		account.Nonce = stored.Nonce
		account.Available = stored.Available
		account.Locked = stored.Locked
	}
	return account.EnsureDefaults(), nil
}

// PutAccount persists the provided account under its address.
func (tx *Tx) PutAccount(account *types.Account) error {
	if account == nil {
		return fmt.Errorf("nil account")
	}
	if account.Address == ([20]byte{}) {
		return common.ErrInvalidAddress
	}
	account.EnsureDefaults()
	if account.Available.Sign() < 0 || account.Locked.Sign() < 0 {
		return common.Wrapf(common.ErrInvariantViolation, "negative balance for %x", account.Address)
	}
	return tx.KVPut(AccountKey(account.Address), &storedAccount{
		Address:   account.Address,
		Nonce:     account.Nonce,
		Available: new(big.Int).Set(account.Available),
		Locked:    new(big.Int).Set(account.Locked),
	})
}

// Deposit credits amount to the available balance of addr. It is the entry
// point for value arriving from the external transfer mechanism.
func (tx *Tx) Deposit(addr [20]byte, amount *big.Int) (*types.Account, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidDeposit
	}
	account, err := tx.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	account.Available = new(big.Int).Add(account.Available, amount)
	if err := tx.PutAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func fromUnix(v uint64) int64 {
	if v > 1<<62 {
		return 1 << 62
	}
	return int64(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
