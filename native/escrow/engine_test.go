package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
)

type mockState struct {
	escrows  map[[32]byte]*Escrow
	accounts map[[20]byte]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		escrows:  make(map[[32]byte]*Escrow),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) EscrowPut(e *Escrow) error {
	if e == nil {
		return fmt.Errorf("nil escrow")
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	m.escrows[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return (&types.Account{Address: addr}).EnsureDefaults(), nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(account *types.Account) error {
	m.accounts[account.Address] = account.Clone().EnsureDefaults()
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Address: addr, Available: big.NewInt(amount), Locked: big.NewInt(0)}
}

func (m *mockState) available(addr [20]byte) int64 {
	acc, _ := m.GetAccount(addr)
	return acc.Available.Int64()
}

func (m *mockState) locked(addr [20]byte) int64 {
	acc, _ := m.GetAccount(addr)
	return acc.Locked.Int64()
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if typed, ok := evt.(events.Typed); ok {
		c.events = append(c.events, typed.Event())
	}
}

func (c *captureEmitter) eventTypes() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Type)
	}
	return out
}

type staticGate struct {
	open bool
	err  error
}

func (g staticGate) CanRelease([32]byte) (bool, error) { return g.open, g.err }

var (
	payer   = newTestAddress(0x01)
	payee   = newTestAddress(0x02)
	arbiter = newTestAddress(0x03)
	outside = newTestAddress(0x04)
)

func testID(b byte) [32]byte {
	var id [32]byte
	id[0] = b
	return id
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *captureEmitter, *int64) {
	t.Helper()
	state := newMockState()
	state.fund(payer, 10_000)
	emitter := &captureEmitter{}
	now := int64(1_000)
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return now })
	return engine, state, emitter, &now
}

func mustCreate(t *testing.T, engine *Engine, id [32]byte, amount int64) *Escrow {
	t.Helper()
	esc, err := engine.Create(id, payer, payee, arbiter, big.NewInt(amount), 2_000, [32]byte{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return esc
}

func TestCreateLocksFunds(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	esc := mustCreate(t, engine, testID(1), 1_000)
	if esc.Status != EscrowFunded {
		t.Fatalf("expected funded, got %s", esc.Status)
	}
	if got := state.available(payer); got != 9_000 {
		t.Fatalf("payer available: got %d", got)
	}
	if got := state.locked(payer); got != 1_000 {
		t.Fatalf("payer locked: got %d", got)
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != EventTypeEscrowCreated {
		t.Fatalf("unexpected events: %v", emitter.eventTypes())
	}
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name     string
		id       [32]byte
		payee    [20]byte
		amount   int64
		deadline int64
		want     error
	}{
		{name: "zero amount", id: testID(9), payee: payee, amount: 0, deadline: 2_000, want: ErrInvalidAmount},
		{name: "past deadline", id: testID(9), payee: payee, amount: 10, deadline: 1_000, want: ErrInvalidDeadline},
		{name: "zero payee", id: testID(9), payee: [20]byte{}, amount: 10, deadline: 2_000, want: common.ErrInvalidAddress},
		{name: "self escrow", id: testID(9), payee: payer, amount: 10, deadline: 2_000, want: ErrInvalidParties},
		{name: "duplicate", id: testID(1), payee: payee, amount: 10, deadline: 2_000, want: ErrDuplicateID},
		{name: "insufficient", id: testID(9), payee: payee, amount: 1_000_000, deadline: 2_000, want: common.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, state, _, _ := newTestEngine(t)
			mustCreate(t, engine, testID(1), 100)
			_, err := engine.Create(tc.id, payer, tc.payee, arbiter, big.NewInt(tc.amount), tc.deadline, [32]byte{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := state.available(payer); got != 9_900 {
				t.Fatalf("payer balance changed on rejection: %d", got)
			}
			if len(state.escrows) != 1 {
				t.Fatalf("unexpected escrow count %d", len(state.escrows))
			}
		})
	}
}

func TestCreateDerivesID(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	first := mustCreate(t, engine, [32]byte{}, 10)
	second := mustCreate(t, engine, [32]byte{}, 10)
	if first.ID == ([32]byte{}) {
		t.Fatalf("expected derived id")
	}
	if first.ID == second.ID {
		t.Fatalf("expected nonce to separate identical terms")
	}
	want := DeriveID(payer, payee, arbiter, big.NewInt(10), 2_000, 0, [32]byte{})
	if first.ID != want {
		t.Fatalf("derived id mismatch")
	}
}

func TestReleasePaysPayee(t *testing.T) {
	engine, state, emitter, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 1_000)

	if _, err := engine.Release(testID(1), payee); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	esc, err := engine.Release(testID(1), arbiter)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if esc.Status != EscrowReleased {
		t.Fatalf("expected released, got %s", esc.Status)
	}
	if got := state.available(payee); got != 1_000 {
		t.Fatalf("payee available: %d", got)
	}
	if got := state.locked(payer); got != 0 {
		t.Fatalf("payer locked: %d", got)
	}
	if _, err := engine.Release(testID(1), arbiter); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected not funded on second release, got %v", err)
	}
	if got := emitter.eventTypes(); len(got) != 2 || got[1] != EventTypeEscrowReleased {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestReleaseMissingEscrow(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if _, err := engine.Release(testID(7), arbiter); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReleaseHonoursGate(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 500)
	engine.SetReleaseGate(staticGate{open: false})
	if _, err := engine.Release(testID(1), arbiter); !errors.Is(err, ErrParentNotComplete) {
		t.Fatalf("expected parent not complete, got %v", err)
	}
	if got := state.locked(payer); got != 500 {
		t.Fatalf("funds moved despite gate: locked %d", got)
	}
	engine.SetReleaseGate(staticGate{open: true})
	if _, err := engine.Release(testID(1), arbiter); err != nil {
		t.Fatalf("release after gate opened: %v", err)
	}
}

func TestRefundDeadlineRules(t *testing.T) {
	engine, state, _, now := newTestEngine(t)
	mustCreate(t, engine, testID(1), 400)

	if _, err := engine.Refund(testID(1), payer); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected deadline not reached, got %v", err)
	}
	if _, err := engine.Refund(testID(1), outside); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	*now = 2_000
	esc, err := engine.Refund(testID(1), payer)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if esc.Status != EscrowRefunded {
		t.Fatalf("expected refunded, got %s", esc.Status)
	}
	if got := state.available(payer); got != 10_000 {
		t.Fatalf("payer available: %d", got)
	}
}

func TestArbiterRefundsBeforeDeadline(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 400)
	if _, err := engine.Refund(testID(1), arbiter); err != nil {
		t.Fatalf("arbiter refund: %v", err)
	}
	if got := state.locked(payer); got != 0 {
		t.Fatalf("locked: %d", got)
	}
}

func TestDisputeFreezesReleaseAndRefund(t *testing.T) {
	engine, _, _, now := newTestEngine(t)
	mustCreate(t, engine, testID(1), 400)
	if _, err := engine.RaiseDispute(testID(1), outside, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.RaiseDispute(testID(1), payee, "late delivery"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	*now = 5_000
	if _, err := engine.Release(testID(1), arbiter); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected release blocked, got %v", err)
	}
	if _, err := engine.Refund(testID(1), payer); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected refund blocked, got %v", err)
	}
	if _, err := engine.RaiseDispute(testID(1), payer, ""); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected second dispute rejected, got %v", err)
	}
}

func TestResolveDisputeSplits(t *testing.T) {
	cases := []struct {
		name       string
		amount     int64
		ratio      uint8
		wantPayee  int64
		wantPayer  int64
		wantStatus EscrowStatus
	}{
		{name: "seventy", amount: 1_000, ratio: 70, wantPayee: 700, wantPayer: 300, wantStatus: EscrowReleased},
		{name: "rounding favours payee", amount: 1_001, ratio: 33, wantPayee: 331, wantPayer: 670, wantStatus: EscrowReleased},
		{name: "all payee", amount: 999, ratio: 100, wantPayee: 999, wantPayer: 0, wantStatus: EscrowReleased},
		{name: "all payer", amount: 999, ratio: 0, wantPayee: 0, wantPayer: 999, wantStatus: EscrowRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, state, emitter, _ := newTestEngine(t)
			mustCreate(t, engine, testID(1), tc.amount)
			if _, err := engine.RaiseDispute(testID(1), payer, ""); err != nil {
				t.Fatalf("dispute: %v", err)
			}
			esc, err := engine.ResolveDispute(testID(1), arbiter, tc.ratio)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if esc.Status != tc.wantStatus {
				t.Fatalf("status: got %s want %s", esc.Status, tc.wantStatus)
			}
			if got := state.available(payee); got != tc.wantPayee {
				t.Fatalf("payee: got %d want %d", got, tc.wantPayee)
			}
			if got := state.available(payer); got != 10_000-tc.amount+tc.wantPayer {
				t.Fatalf("payer: got %d", got)
			}
			if esc.PayeePaid.Int64()+esc.PayerRefunded.Int64() != tc.amount {
				t.Fatalf("conservation broken: %s + %s", esc.PayeePaid, esc.PayerRefunded)
			}
			found := false
			for _, evt := range emitter.events {
				if evt.Type == EventTypeEscrowResolved {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected resolved event in %v", emitter.eventTypes())
			}
		})
	}
}

func TestDisputeSettlementHonoursGate(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 100)
	mustCreate(t, engine, testID(2), 100)
	engine.SetReleaseGate(staticGate{open: false})
	for _, id := range [][32]byte{testID(1), testID(2)} {
		if _, err := engine.RaiseDispute(id, payer, ""); err != nil {
			t.Fatalf("dispute: %v", err)
		}
	}
	if _, err := engine.ResolveDispute(testID(1), arbiter, 50); !errors.Is(err, ErrParentNotComplete) {
		t.Fatalf("expected parent not complete, got %v", err)
	}
	if _, err := engine.SettleVerdict(testID(1), 100); !errors.Is(err, ErrParentNotComplete) {
		t.Fatalf("expected parent not complete on verdict, got %v", err)
	}
	if got := state.available(payee); got != 0 {
		t.Fatalf("payee paid despite gate: %d", got)
	}
	esc, err := engine.ResolveDispute(testID(2), arbiter, 0)
	if err != nil {
		t.Fatalf("full refund must bypass gate: %v", err)
	}
	if esc.Status != EscrowRefunded {
		t.Fatalf("status: got %s", esc.Status)
	}
}

func TestResolveDisputeRejections(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 100)
	if _, err := engine.ResolveDispute(testID(1), arbiter, 50); !errors.Is(err, ErrNotDisputed) {
		t.Fatalf("expected not disputed, got %v", err)
	}
	if _, err := engine.RaiseDispute(testID(1), payer, ""); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := engine.ResolveDispute(testID(1), arbiter, 101); !errors.Is(err, ErrInvalidRatio) {
		t.Fatalf("expected invalid ratio, got %v", err)
	}
	if _, err := engine.ResolveDispute(testID(1), payee, 50); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.SettleVerdict(testID(1), 50); err != nil {
		t.Fatalf("settle verdict: %v", err)
	}
}

func TestPartialReleaseThenRefund(t *testing.T) {
	engine, state, _, now := newTestEngine(t)
	mustCreate(t, engine, testID(1), 1_000)
	esc, err := engine.ReleasePartial(testID(1), arbiter, big.NewInt(250))
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	if esc.Status != EscrowFunded || esc.Remaining().Int64() != 750 {
		t.Fatalf("unexpected escrow after partial: %s remaining %s", esc.Status, esc.Remaining())
	}
	if _, err := engine.ReleasePartial(testID(1), arbiter, big.NewInt(751)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	*now = 3_000
	esc, err = engine.Refund(testID(1), payer)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if esc.PayeePaid.Int64() != 250 || esc.PayerRefunded.Int64() != 750 {
		t.Fatalf("unexpected split %s/%s", esc.PayeePaid, esc.PayerRefunded)
	}
	if state.available(payee) != 250 || state.available(payer) != 9_750 || state.locked(payer) != 0 {
		t.Fatalf("balances not conserved")
	}
}

func TestPartialReleaseOfRemainderCompletes(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 300)
	esc, err := engine.ReleasePartial(testID(1), arbiter, big.NewInt(300))
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	if esc.Status != EscrowReleased {
		t.Fatalf("expected released, got %s", esc.Status)
	}
}

func TestDelegation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 300)
	delegate := newTestAddress(0x0D)
	if _, err := engine.Delegate(testID(1), payer, delegate); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.Delegate(testID(1), arbiter, delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if _, err := engine.Delegate(testID(1), arbiter, delegate); !errors.Is(err, ErrDelegateExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	if _, err := engine.RevokeDelegate(testID(1), arbiter, delegate); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := engine.Release(testID(1), delegate); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked delegate should not release, got %v", err)
	}
	if _, err := engine.Delegate(testID(1), arbiter, delegate); err != nil {
		t.Fatalf("re-delegate: %v", err)
	}
	if _, err := engine.Release(testID(1), delegate); err != nil {
		t.Fatalf("delegate release: %v", err)
	}
}

func TestLoadDetectsInvariantViolation(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	mustCreate(t, engine, testID(1), 100)
	state.escrows[testID(1)].PayeePaid = big.NewInt(150)
	if _, err := engine.Release(testID(1), arbiter); !errors.Is(err, common.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestSplitRemainingConserves(t *testing.T) {
	for ratio := 0; ratio <= 100; ratio++ {
		for _, amount := range []int64{1, 7, 99, 1_001, 123_457} {
			toPayee, toPayer := SplitRemaining(big.NewInt(amount), uint8(ratio))
			if new(big.Int).Add(toPayee, toPayer).Int64() != amount {
				t.Fatalf("ratio %d amount %d: shares do not sum", ratio, amount)
			}
			if toPayee.Sign() < 0 || toPayer.Sign() < 0 {
				t.Fatalf("ratio %d amount %d: negative share", ratio, amount)
			}
		}
	}
}
