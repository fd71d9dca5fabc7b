package types

import "math/big"

// Account tracks the balances the settlement engine holds for a single party.
// Available funds may be committed to escrows or streams; committing moves
// them into Locked until the escrow or stream pays them out.
type Account struct {
	Address   [20]byte `json:"address"`
	Nonce     uint64   `json:"nonce"`
	Available *big.Int `json:"available"`
	Locked    *big.Int `json:"locked"`
}

// EnsureDefaults replaces nil balances with zero values.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{Available: big.NewInt(0), Locked: big.NewInt(0)}
	}
	if a.Available == nil {
		a.Available = big.NewInt(0)
	}
	if a.Locked == nil {
		a.Locked = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Available = big.NewInt(0)
	clone.Locked = big.NewInt(0)
	if a.Available != nil {
		clone.Available.Set(a.Available)
	}
	if a.Locked != nil {
		clone.Locked.Set(a.Locked)
	}
	return &clone
}
