package escrow

import (
	"math/big"
	"time"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
)

// MaxDelegates bounds the delegate list carried by a single escrow.
const MaxDelegates = 8

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(account *types.Account) error
}

// ReleaseGate is consulted before value leaves custody towards the payee.
// The dependency graph implements it.
type ReleaseGate interface {
	CanRelease(id [32]byte) (bool, error)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow business logic with external state and event
// emitters.
type Engine struct {
	state   engineState
	emitter events.Emitter
	gate    ReleaseGate
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetReleaseGate installs the dependency check applied on release. Passing
// nil disables the check.
func (e *Engine) SetReleaseGate(gate ReleaseGate) { e.gate = gate }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	if err := esc.CheckInvariants(); err != nil {
		return nil, common.Wrapf(common.ErrInvariantViolation, "escrow %x: %v", id, err)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := esc.CheckInvariants(); err != nil {
		return common.Wrapf(common.ErrInvariantViolation, "escrow %x: %v", esc.ID, err)
	}
	return e.state.EscrowPut(esc)
}

// Get returns a copy of the stored escrow.
func (e *Engine) Get(id [32]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Create funds a new escrow by locking amount from the payer's available
// balance. When id is the zero value a content-derived identifier is
// computed from the terms and the payer's nonce.
func (e *Engine) Create(id [32]byte, payer, payee, arbiter [20]byte, amount *big.Int, deadline int64, metaHash [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if deadline <= now {
		return nil, common.Wrapf(ErrInvalidDeadline, "deadline %d, now %d", deadline, now)
	}
	if payer == ([20]byte{}) || payee == ([20]byte{}) || arbiter == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	if payer == payee {
		return nil, ErrInvalidParties
	}
	payerAcc, err := e.state.GetAccount(payer)
	if err != nil {
		return nil, err
	}
	if id == ([32]byte{}) {
		id = DeriveID(payer, payee, arbiter, amount, deadline, payerAcc.Nonce, metaHash)
	}
	if _, exists, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrDuplicateID
	}
	if err := common.LockFunds(e.state, payer, amount); err != nil {
		return nil, err
	}
	payerAcc, err = e.state.GetAccount(payer)
	if err != nil {
		return nil, err
	}
	payerAcc.Nonce++
	if err := e.state.PutAccount(payerAcc); err != nil {
		return nil, err
	}
	esc := &Escrow{
		ID:            id,
		Payer:         payer,
		Payee:         payee,
		Arbiter:       arbiter,
		Amount:        new(big.Int).Set(amount),
		Deadline:      deadline,
		CreatedAt:     now,
		MetaHash:      metaHash,
		Status:        EscrowFunded,
		PayeePaid:     big.NewInt(0),
		PayerRefunded: big.NewInt(0),
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

func (e *Engine) checkGate(id [32]byte) error {
	if e.gate == nil {
		return nil
	}
	ok, err := e.gate.CanRelease(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrParentNotComplete
	}
	return nil
}

// Release pays the remaining custody balance to the payee. Only the arbiter
// or one of its delegates may release, and every upstream dependency must be
// satisfied.
func (e *Engine) Release(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowFunded {
		return nil, common.Wrapf(ErrNotFunded, "status %s", esc.Status)
	}
	if !esc.Arbitrates(caller) {
		return nil, ErrUnauthorized
	}
	if err := e.checkGate(id); err != nil {
		return nil, err
	}
	paid := esc.Remaining()
	if err := common.PayOut(e.state, esc.Payer, esc.Payee, paid); err != nil {
		return nil, err
	}
	esc.PayeePaid = new(big.Int).Add(esc.PayeePaid, paid)
	esc.Status = EscrowReleased
	esc.SettledAt = e.now()
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewReleasedEvent(esc, paid))
	return esc.Clone(), nil
}

// ReleasePartial pays amount to the payee while the escrow stays funded. A
// partial release covering the whole remaining balance completes the escrow.
func (e *Engine) ReleasePartial(id [32]byte, caller [20]byte, amount *big.Int) (*Escrow, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowFunded {
		return nil, common.Wrapf(ErrNotFunded, "status %s", esc.Status)
	}
	if !esc.Arbitrates(caller) {
		return nil, ErrUnauthorized
	}
	remaining := esc.Remaining()
	if amount.Cmp(remaining) > 0 {
		return nil, common.Wrapf(ErrInvalidAmount, "amount %s exceeds remaining %s", amount, remaining)
	}
	if amount.Cmp(remaining) == 0 {
		return e.Release(id, caller)
	}
	if err := e.checkGate(id); err != nil {
		return nil, err
	}
	if err := common.PayOut(e.state, esc.Payer, esc.Payee, amount); err != nil {
		return nil, err
	}
	esc.PayeePaid = new(big.Int).Add(esc.PayeePaid, amount)
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewPartialReleasedEvent(esc, amount))
	return esc.Clone(), nil
}

// Refund returns the remaining custody balance to the payer. The arbiter and
// its delegates may refund at any time; the payer only once the deadline has
// been reached.
func (e *Engine) Refund(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowFunded {
		return nil, common.Wrapf(ErrNotFunded, "status %s", esc.Status)
	}
	now := e.now()
	switch {
	case esc.Arbitrates(caller):
	case caller == esc.Payer:
		if now < esc.Deadline {
			return nil, common.Wrapf(ErrDeadlineNotReached, "deadline %d, now %d", esc.Deadline, now)
		}
	default:
		return nil, ErrUnauthorized
	}
	refunded := esc.Remaining()
	if err := common.PayOut(e.state, esc.Payer, esc.Payer, refunded); err != nil {
		return nil, err
	}
	esc.PayerRefunded = new(big.Int).Add(esc.PayerRefunded, refunded)
	esc.Status = EscrowRefunded
	esc.SettledAt = now
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(esc, refunded))
	return esc.Clone(), nil
}

// RaiseDispute freezes release and refund until the dispute is resolved.
// Either party may raise it.
func (e *Engine) RaiseDispute(id [32]byte, caller [20]byte, reason string) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowFunded {
		return nil, common.Wrapf(ErrNotFunded, "status %s", esc.Status)
	}
	if caller != esc.Payer && caller != esc.Payee {
		return nil, ErrUnauthorized
	}
	esc.Status = EscrowDisputed
	esc.DisputedBy = caller
	esc.DisputeReason = reason
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(esc))
	return esc.Clone(), nil
}

// ResolveDispute splits the remaining balance of a disputed escrow. ratio is
// the payee's percentage; the payer receives floor(remaining*(100-ratio)/100)
// and the payee the rest, so the two shares always sum to the remaining
// balance. A ratio of zero settles the escrow as Refunded rather than
// Released, since nothing reaches the payee; any other ratio ends Released.
// A split paying the payee anything is subject to the same dependency gate as
// Release and fails with ErrParentNotComplete until upstream escrows settle.
func (e *Engine) ResolveDispute(id [32]byte, caller [20]byte, ratio uint8) (*Escrow, error) {
	if ratio > 100 {
		return nil, common.Wrapf(ErrInvalidRatio, "ratio %d", ratio)
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowDisputed {
		return nil, common.Wrapf(ErrNotDisputed, "status %s", esc.Status)
	}
	if !esc.Arbitrates(caller) {
		return nil, ErrUnauthorized
	}
	return e.settle(esc, ratio)
}

// SettleVerdict applies an arbitration verdict to a disputed escrow. The
// arbitration resolver is the authority, so no caller check applies.
func (e *Engine) SettleVerdict(id [32]byte, ratio uint8) (*Escrow, error) {
	if ratio > 100 {
		return nil, common.Wrapf(ErrInvalidRatio, "ratio %d", ratio)
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscrowDisputed {
		return nil, common.Wrapf(ErrNotDisputed, "status %s", esc.Status)
	}
	return e.settle(esc, ratio)
}

// SplitRemaining returns the payee and payer shares of remaining for ratio.
func SplitRemaining(remaining *big.Int, ratio uint8) (toPayee, toPayer *big.Int) {
	toPayer = new(big.Int).Mul(remaining, big.NewInt(int64(100-ratio)))
	toPayer.Quo(toPayer, big.NewInt(100))
	toPayee = new(big.Int).Sub(remaining, toPayer)
	return toPayee, toPayer
}

func (e *Engine) settle(esc *Escrow, ratio uint8) (*Escrow, error) {
	toPayee, toPayer := SplitRemaining(esc.Remaining(), ratio)
	if toPayee.Sign() > 0 {
		if err := e.checkGate(esc.ID); err != nil {
			return nil, err
		}
	}
	if err := common.PayOut(e.state, esc.Payer, esc.Payee, toPayee); err != nil {
		return nil, err
	}
	if err := common.PayOut(e.state, esc.Payer, esc.Payer, toPayer); err != nil {
		return nil, err
	}
	esc.PayeePaid = new(big.Int).Add(esc.PayeePaid, toPayee)
	esc.PayerRefunded = new(big.Int).Add(esc.PayerRefunded, toPayer)
	esc.ResolvedRatio = ratio
	esc.SettledAt = e.now()
	if ratio == 0 {
		esc.Status = EscrowRefunded
	} else {
		esc.Status = EscrowReleased
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(esc, toPayee, toPayer))
	if esc.Status == EscrowRefunded {
		e.emit(NewRefundedEvent(esc, toPayer))
	} else {
		e.emit(NewReleasedEvent(esc, toPayee))
	}
	return esc.Clone(), nil
}

// Delegate grants delegate the arbiter's authority on the escrow. Only the
// arbiter may delegate.
func (e *Engine) Delegate(id [32]byte, caller, delegate [20]byte) (*Escrow, error) {
	if delegate == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status.Terminal() {
		return nil, common.Wrapf(ErrNotFunded, "status %s", esc.Status)
	}
	if caller != esc.Arbiter {
		return nil, ErrUnauthorized
	}
	if delegate == esc.Arbiter || esc.IsDelegate(delegate) {
		return nil, ErrDelegateExists
	}
	if len(esc.Delegates) >= MaxDelegates {
		return nil, ErrTooManyDelegates
	}
	esc.Delegates = append(esc.Delegates, delegate)
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewDelegateEvent(EventTypeDelegateAdded, esc, delegate))
	return esc.Clone(), nil
}

// RevokeDelegate removes a previously granted delegate.
func (e *Engine) RevokeDelegate(id [32]byte, caller, delegate [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if caller != esc.Arbiter {
		return nil, ErrUnauthorized
	}
	idx := -1
	for i, d := range esc.Delegates {
		if d == delegate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrDelegateNotFound
	}
	esc.Delegates = append(esc.Delegates[:idx], esc.Delegates[idx+1:]...)
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewDelegateEvent(EventTypeDelegateRevoked, esc, delegate))
	return esc.Clone(), nil
}
