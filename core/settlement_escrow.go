package core

import (
	"context"
	"math/big"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/escrow"
)

// CreateEscrowParams describes a new escrow. A zero ID asks the engine to
// derive one from the terms.
type CreateEscrowParams struct {
	ID       [32]byte
	Payer    [20]byte
	Payee    [20]byte
	Arbiter  [20]byte
	Amount   *big.Int
	Deadline int64
	MetaHash [32]byte
}

// EventTypeAccountDeposited is emitted when external value is credited to an
// account.
const EventTypeAccountDeposited = "account.deposited"

type accountEvent struct {
	evt *types.Event
}

func (e accountEvent) EventType() string { return e.evt.Type }

func (e accountEvent) Event() *types.Event { return e.evt }

func newDepositedEvent(acc *types.Account, amount *big.Int) accountEvent {
	return accountEvent{evt: &types.Event{
		Type: EventTypeAccountDeposited,
		Attributes: map[string]string{
			"address":   events.FormatAddress(acc.Address),
			"amount":    events.FormatAmount(amount),
			"available": events.FormatAmount(acc.Available),
		},
	}}
}

// Deposit credits amount to addr's available balance.
func (s *Settlement) Deposit(ctx context.Context, addr [20]byte, amount *big.Int) (*types.Account, error) {
	var out *types.Account
	err := s.mutate(ctx, "deposit", "", []string{accountLockKey(addr)}, func(e *engines) error {
		acc, err := e.tx.Deposit(addr, amount)
		if err != nil {
			return err
		}
		e.emitter.Emit(newDepositedEvent(acc, amount))
		out = acc
		return nil
	})
	return out, err
}

// Account returns the committed balances of addr.
func (s *Settlement) Account(ctx context.Context, addr [20]byte) (*types.Account, error) {
	var out *types.Account
	err := s.view(ctx, "account", func(e *engines) error {
		acc, err := e.tx.GetAccount(addr)
		if err != nil {
			return err
		}
		out = acc
		return nil
	})
	return out, err
}

// CreateEscrow locks the amount from the payer and records a funded escrow.
func (s *Settlement) CreateEscrow(ctx context.Context, p CreateEscrowParams) (*escrow.Escrow, error) {
	keys := []string{accountLockKey(p.Payer)}
	if p.ID != ([32]byte{}) {
		keys = append(keys, escrowLockKey(p.ID))
	}
	var out *escrow.Escrow
	err := s.mutate(ctx, "escrow.create", moduleEscrow, keys, func(e *engines) error {
		esc, err := e.escrow.Create(p.ID, p.Payer, p.Payee, p.Arbiter, p.Amount, p.Deadline, p.MetaHash)
		if err != nil {
			return err
		}
		out = esc
		return nil
	})
	return out, err
}

// Escrow returns the committed escrow record.
func (s *Settlement) Escrow(ctx context.Context, id [32]byte) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := s.view(ctx, "escrow.get", func(e *engines) error {
		esc, err := e.escrow.Get(id)
		if err != nil {
			return err
		}
		out = esc
		return nil
	})
	return out, err
}

// escrowKeys returns the lock keys covering an escrow and both parties'
// accounts. Parties never change after creation so reading them unlocked is
// safe.
func (s *Settlement) escrowKeys(ctx context.Context, id [32]byte, extra ...string) ([]string, error) {
	esc, err := s.Escrow(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []string{escrowLockKey(id), accountLockKey(esc.Payer), accountLockKey(esc.Payee)}
	return append(keys, extra...), nil
}

// Release pays the remaining balance to the payee.
func (s *Settlement) Release(ctx context.Context, id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.release", id, func(e *engines) (*escrow.Escrow, error) {
		esc, err := e.escrow.Release(id, caller)
		if err != nil {
			return nil, err
		}
		return esc, recordOutcome(e, esc)
	})
}

// ReleasePartial pays amount to the payee. When amount covers the remaining
// balance the escrow completes as released.
func (s *Settlement) ReleasePartial(ctx context.Context, id [32]byte, caller [20]byte, amount *big.Int) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.release_partial", id, func(e *engines) (*escrow.Escrow, error) {
		esc, err := e.escrow.ReleasePartial(id, caller, amount)
		if err != nil {
			return nil, err
		}
		return esc, recordOutcome(e, esc)
	})
}

// Refund returns the remaining balance to the payer.
func (s *Settlement) Refund(ctx context.Context, id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.refund", id, func(e *engines) (*escrow.Escrow, error) {
		esc, err := e.escrow.Refund(id, caller)
		if err != nil {
			return nil, err
		}
		return esc, recordOutcome(e, esc)
	})
}

// RaiseDispute freezes the escrow and opens its arbitration case. The caller
// is the claimant; the other party responds.
func (s *Settlement) RaiseDispute(ctx context.Context, id [32]byte, caller [20]byte, reason string) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.dispute", id, func(e *engines) (*escrow.Escrow, error) {
		esc, err := e.escrow.RaiseDispute(id, caller, reason)
		if err != nil {
			return nil, err
		}
		respondent := esc.Payee
		if caller == esc.Payee {
			respondent = esc.Payer
		}
		if _, err := e.arbitration.Open(id, caller, respondent); err != nil {
			return nil, err
		}
		return esc, nil
	})
}

// ResolveDispute applies an arbiter's split to a disputed escrow and closes
// any open arbitration case with the same ratio.
func (s *Settlement) ResolveDispute(ctx context.Context, id [32]byte, caller [20]byte, ratio uint8) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.resolve", id, func(e *engines) (*escrow.Escrow, error) {
		esc, err := e.escrow.ResolveDispute(id, caller, ratio)
		if err != nil {
			return nil, err
		}
		if _, err := e.arbitration.ResolveManually(id, ratio); err != nil {
			return nil, err
		}
		return esc, recordSettlement(e, esc, ratio)
	})
}

// Delegate grants delegate the arbiter's authority on the escrow.
func (s *Settlement) Delegate(ctx context.Context, id [32]byte, caller, delegate [20]byte) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.delegate", id, func(e *engines) (*escrow.Escrow, error) {
		return e.escrow.Delegate(id, caller, delegate)
	})
}

// RevokeDelegate removes a delegate from the escrow.
func (s *Settlement) RevokeDelegate(ctx context.Context, id [32]byte, caller, delegate [20]byte) (*escrow.Escrow, error) {
	return s.escrowOp(ctx, "escrow.revoke_delegate", id, func(e *engines) (*escrow.Escrow, error) {
		return e.escrow.RevokeDelegate(id, caller, delegate)
	})
}

func (s *Settlement) escrowOp(ctx context.Context, op string, id [32]byte, fn func(*engines) (*escrow.Escrow, error)) (*escrow.Escrow, error) {
	keys, err := s.escrowKeys(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *escrow.Escrow
	err = s.mutate(ctx, op, moduleEscrow, keys, func(e *engines) error {
		esc, err := fn(e)
		if err != nil {
			return err
		}
		out = esc
		return nil
	})
	return out, err
}

// recordOutcome feeds a terminal escrow outcome into both parties'
// reputation. Non-terminal results are ignored.
func recordOutcome(e *engines, esc *escrow.Escrow) error {
	switch esc.Status {
	case escrow.EscrowReleased:
		for _, party := range [][20]byte{esc.Payer, esc.Payee} {
			if _, err := e.reputation.OnEscrowReleased(party, esc.Amount); err != nil {
				return err
			}
		}
	case escrow.EscrowRefunded:
		for _, party := range [][20]byte{esc.Payer, esc.Payee} {
			if _, err := e.reputation.OnEscrowRefunded(party); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordSettlement feeds a dispute settlement into reputation: the terminal
// escrow outcome for both parties first, then the dispute result.
func recordSettlement(e *engines, esc *escrow.Escrow, ratio uint8) error {
	if err := recordOutcome(e, esc); err != nil {
		return err
	}
	return recordDispute(e, esc, ratio)
}

// recordDispute credits the side favoured by ratio. An even split records
// neither a win nor a loss; the escrow still counts through recordOutcome.
func recordDispute(e *engines, esc *escrow.Escrow, ratio uint8) error {
	var winner, loser [20]byte
	switch {
	case ratio > 50:
		winner, loser = esc.Payee, esc.Payer
	case ratio < 50:
		winner, loser = esc.Payer, esc.Payee
	default:
		return nil
	}
	if _, err := e.reputation.OnDisputeResolved(winner, true); err != nil {
		return err
	}
	_, err := e.reputation.OnDisputeResolved(loser, false)
	return err
}
