package stream

import (
	"math/big"
	"time"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
)

type engineState interface {
	StreamPut(*Stream) error
	StreamGet(id [32]byte) (*Stream, bool, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(account *types.Account) error
}

// Engine implements the streaming accrual ledger. Accrual is evaluated from
// the caller supplied clock; the engine never ticks on its own.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the clock used for stream start times.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

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
	e.emitter.Emit(streamEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadStream(id [32]byte, at int64) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, ok, err := e.state.StreamGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownStream
	}
	if err := s.CheckInvariants(at); err != nil {
		return nil, common.Wrapf(common.ErrInvariantViolation, "stream %x: %v", id, err)
	}
	return s, nil
}

func (e *Engine) storeStream(s *Stream) error {
	if err := s.CheckInvariants(s.LastObserved); err != nil {
		return common.Wrapf(common.ErrInvariantViolation, "stream %x: %v", s.ID, err)
	}
	return e.state.StreamPut(s)
}

// Start locks budget from the sender and opens an active stream starting at
// the engine clock. A zero id is replaced by a content-derived one.
func (e *Engine) Start(id [32]byte, sender, receiver [20]byte, rate, budget *big.Int) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if budget == nil || budget.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if rate == nil || rate.Sign() < 0 {
		return nil, ErrInvalidRate
	}
	if sender == ([20]byte{}) || receiver == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	if sender == receiver {
		return nil, ErrInvalidParties
	}
	acc, err := e.state.GetAccount(sender)
	if err != nil {
		return nil, err
	}
	if id == ([32]byte{}) {
		id = DeriveID(sender, receiver, rate, budget, acc.Nonce)
	}
	if _, exists, err := e.state.StreamGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrDuplicateID
	}
	if err := common.LockFunds(e.state, sender, budget); err != nil {
		return nil, err
	}
	acc, err = e.state.GetAccount(sender)
	if err != nil {
		return nil, err
	}
	acc.Nonce++
	if err := e.state.PutAccount(acc); err != nil {
		return nil, err
	}
	now := e.now()
	s := &Stream{
		ID:             id,
		Sender:         sender,
		Receiver:       receiver,
		RatePerSecond:  new(big.Int).Set(rate),
		Budget:         new(big.Int).Set(budget),
		StartTime:      now,
		Withdrawn:      big.NewInt(0),
		Status:         StatusActive,
		FrozenStreamed: big.NewInt(0),
		LastObserved:   now,
	}
	if err := e.storeStream(s); err != nil {
		return nil, err
	}
	e.emit(NewStartedEvent(s))
	return s.Clone(), nil
}

// Get returns a copy of the stored record.
func (e *Engine) Get(id [32]byte) (*Stream, error) {
	s, err := e.loadStream(id, 0)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Status evaluates the stream at now without mutating it. Instants earlier
// than the last applied mutation are clamped to it.
func (e *Engine) Status(id [32]byte, now int64) (*Snapshot, error) {
	s, err := e.loadStream(id, now)
	if err != nil {
		return nil, err
	}
	snap := s.SnapshotAt(now)
	if s.Status == StatusActive && snap.Streamed.Cmp(s.Budget) == 0 {
		snap.Status = StatusCompleted
	}
	return snap, nil
}

func (e *Engine) checkClock(s *Stream, now int64) error {
	if now < s.LastObserved {
		return common.Wrapf(ErrClockRegression, "now %d, last observed %d", now, s.LastObserved)
	}
	return nil
}

// complete flips an active, fully accrued stream to completed. It reports
// whether the transition happened.
func (e *Engine) complete(s *Stream, now int64) bool {
	if s.Status != StatusActive {
		return false
	}
	if s.StreamedAt(now).Cmp(s.Budget) < 0 {
		return false
	}
	s.Status = StatusCompleted
	s.CompletedAt = now
	return true
}

// Withdraw pays the receiver everything streamed but not yet withdrawn.
// Repeated calls at the same instant pay nothing and fail with
// ErrNothingToWithdraw.
func (e *Engine) Withdraw(id [32]byte, now int64) (*big.Int, *Stream, error) {
	s, err := e.loadStream(id, now)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkClock(s, now); err != nil {
		return nil, nil, err
	}
	streamed := s.StreamedAt(now)
	paid := new(big.Int).Sub(streamed, s.Withdrawn)
	if paid.Sign() <= 0 {
		return nil, nil, ErrNothingToWithdraw
	}
	if err := common.PayOut(e.state, s.Sender, s.Receiver, paid); err != nil {
		return nil, nil, err
	}
	s.Withdrawn = streamed
	s.LastObserved = now
	completed := e.complete(s, now)
	if err := e.storeStream(s); err != nil {
		return nil, nil, err
	}
	e.emit(NewWithdrawnEvent(s, paid))
	if completed {
		e.emit(NewCompletedEvent(s))
	}
	return paid, s.Clone(), nil
}

// Cancel freezes the entitlement at now and refunds the unstreamed budget to
// the sender. The receiver may still withdraw the frozen entitlement.
func (e *Engine) Cancel(id [32]byte, caller [20]byte, now int64) (*big.Int, *Stream, error) {
	s, err := e.loadStream(id, now)
	if err != nil {
		return nil, nil, err
	}
	if caller != s.Sender {
		return nil, nil, ErrUnauthorized
	}
	if err := e.checkClock(s, now); err != nil {
		return nil, nil, err
	}
	if s.Status != StatusActive || s.StreamedAt(now).Cmp(s.Budget) == 0 {
		return nil, nil, common.Wrapf(ErrStreamNotActive, "status %s", s.Status)
	}
	streamed := s.StreamedAt(now)
	refunded := new(big.Int).Sub(s.Budget, streamed)
	if err := common.PayOut(e.state, s.Sender, s.Sender, refunded); err != nil {
		return nil, nil, err
	}
	s.FrozenStreamed = streamed
	s.Status = StatusCancelled
	s.CancelledAt = now
	s.LastObserved = now
	if err := e.storeStream(s); err != nil {
		return nil, nil, err
	}
	e.emit(NewCancelledEvent(s, refunded))
	return refunded, s.Clone(), nil
}

// Tick persists the completion of a fully accrued stream. It is a no-op for
// streams that are still accruing or already terminal.
func (e *Engine) Tick(id [32]byte, now int64) (*Stream, bool, error) {
	s, err := e.loadStream(id, now)
	if err != nil {
		return nil, false, err
	}
	if now < s.LastObserved {
		return s.Clone(), false, nil
	}
	if !e.complete(s, now) {
		return s.Clone(), false, nil
	}
	s.LastObserved = now
	if err := e.storeStream(s); err != nil {
		return nil, false, err
	}
	e.emit(NewCompletedEvent(s))
	return s.Clone(), true, nil
}
