package state

import (
	"fmt"
	"math/big"

	"trustescrow/native/escrow"
)

type storedEscrow struct {
	ID            [32]byte
	Payer         [20]byte
	Payee         [20]byte
	Arbiter       [20]byte
	Amount        *big.Int
	Deadline      uint64
	CreatedAt     uint64
	MetaHash      [32]byte
	Status        uint8
	PayeePaid     *big.Int
	PayerRefunded *big.Int
	Delegates     [][20]byte
	DisputedBy    [20]byte
	DisputeReason string
	ResolvedRatio uint8
	SettledAt     uint64
}

func newStoredEscrow(e *escrow.Escrow) *storedEscrow {
	return &storedEscrow{
		ID:            e.ID,
		Payer:         e.Payer,
		Payee:         e.Payee,
		Arbiter:       e.Arbiter,
		Amount:        bigOrZero(e.Amount),
		Deadline:      toUnix(e.Deadline),
		CreatedAt:     toUnix(e.CreatedAt),
		MetaHash:      e.MetaHash,
		Status:        uint8(e.Status),
		PayeePaid:     bigOrZero(e.PayeePaid),
		PayerRefunded: bigOrZero(e.PayerRefunded),
		Delegates:     append([][20]byte(nil), e.Delegates...),
		DisputedBy:    e.DisputedBy,
		DisputeReason: e.DisputeReason,
		ResolvedRatio: e.ResolvedRatio,
		SettledAt:     toUnix(e.SettledAt),
	}
}

func (s *storedEscrow) toEscrow() (*escrow.Escrow, error) {
	out := &escrow.Escrow{
		ID:            s.ID,
		Payer:         s.Payer,
		Payee:         s.Payee,
		Arbiter:       s.Arbiter,
		Amount:        bigOrZero(s.Amount),
		Deadline:      fromUnix(s.Deadline),
		CreatedAt:     fromUnix(s.CreatedAt),
		MetaHash:      s.MetaHash,
		Status:        escrow.EscrowStatus(s.Status),
		PayeePaid:     bigOrZero(s.PayeePaid),
		PayerRefunded: bigOrZero(s.PayerRefunded),
		DisputedBy:    s.DisputedBy,
		DisputeReason: s.DisputeReason,
		ResolvedRatio: s.ResolvedRatio,
		SettledAt:     fromUnix(s.SettledAt),
	}
	if len(s.Delegates) > 0 {
		out.Delegates = append([][20]byte(nil), s.Delegates...)
	}
	return escrow.SanitizeEscrow(out)
}

// EscrowPut stores the escrow record.
func (tx *Tx) EscrowPut(e *escrow.Escrow) error {
	if e == nil {
		return fmt.Errorf("nil escrow")
	}
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	return tx.KVPut(EscrowKey(sanitized.ID), newStoredEscrow(sanitized))
}

// EscrowGet loads the escrow record for id.
func (tx *Tx) EscrowGet(id [32]byte) (*escrow.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := tx.KVGet(EscrowKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := stored.toEscrow()
	if err != nil {
		return nil, false, fmt.Errorf("escrow %x: %w", id, err)
	}
	return e, true, nil
}
