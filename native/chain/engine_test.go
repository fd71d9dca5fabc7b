package chain

import (
	"errors"
	"math/big"
	"testing"

	"trustescrow/native/escrow"
)

type mockState struct {
	nodes      map[[32]byte]*Node
	milestones map[[32]byte]bool
}

func newMockState() *mockState {
	return &mockState{nodes: make(map[[32]byte]*Node), milestones: make(map[[32]byte]bool)}
}

func (m *mockState) ChainNodeGet(id [32]byte) (*Node, bool, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, false, nil
	}
	return n.Clone(), true, nil
}

func (m *mockState) ChainNodePut(n *Node) error {
	m.nodes[n.ID] = n.Clone()
	return nil
}

func (m *mockState) ChainNodeDelete(id [32]byte) error {
	delete(m.nodes, id)
	return nil
}

func (m *mockState) MilestoneGet(id [32]byte) (bool, error) { return m.milestones[id], nil }

func (m *mockState) MilestonePut(id [32]byte) error {
	m.milestones[id] = true
	return nil
}

type mockEscrows map[[32]byte]*escrow.Escrow

func (m mockEscrows) Get(id [32]byte) (*escrow.Escrow, error) {
	esc, ok := m[id]
	if !ok {
		return nil, escrow.ErrEscrowNotFound
	}
	return esc.Clone(), nil
}

var arbiter = [20]byte{0xAB}

func id(b byte) [32]byte {
	var out [32]byte
	out[31] = b
	return out
}

func newTestEngine(t *testing.T, count int) (*Engine, *mockState, mockEscrows) {
	t.Helper()
	state := newMockState()
	escrows := make(mockEscrows)
	for i := 1; i <= count; i++ {
		escrows[id(byte(i))] = &escrow.Escrow{
			ID:            id(byte(i)),
			Arbiter:       arbiter,
			Amount:        big.NewInt(1_000),
			Status:        escrow.EscrowFunded,
			PayeePaid:     big.NewInt(0),
			PayerRefunded: big.NewInt(0),
		}
	}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEscrows(escrows)
	return engine, state, escrows
}

func mustLink(t *testing.T, engine *Engine, parent, child [32]byte, depType DependencyType, threshold uint32) {
	t.Helper()
	if _, err := engine.Link(parent, child, depType, threshold); err != nil {
		t.Fatalf("link %x -> %x: %v", parent[31], child[31], err)
	}
}

func TestReleaseEdgeGatesChild(t *testing.T) {
	engine, _, escrows := newTestEngine(t, 2)
	mustLink(t, engine, id(1), id(2), DependencyRelease, 0)

	ok, err := engine.CanRelease(id(2))
	if err != nil || ok {
		t.Fatalf("expected gated child, ok=%v err=%v", ok, err)
	}
	if ok, _ := engine.CanRelease(id(1)); !ok {
		t.Fatalf("root must be releasable")
	}
	escrows[id(1)].Status = escrow.EscrowReleased
	if ok, _ := engine.CanRelease(id(2)); !ok {
		t.Fatalf("expected child releasable after parent release")
	}
}

func TestRefundedParentDoesNotSatisfyRelease(t *testing.T) {
	engine, _, escrows := newTestEngine(t, 2)
	mustLink(t, engine, id(1), id(2), DependencyRelease, 0)
	escrows[id(1)].Status = escrow.EscrowRefunded
	if ok, _ := engine.CanRelease(id(2)); ok {
		t.Fatalf("refunded parent must not unlock child")
	}
}

func TestPartialEdgeThreshold(t *testing.T) {
	engine, _, escrows := newTestEngine(t, 2)
	if _, err := engine.Link(id(1), id(2), DependencyPartial, 0); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected invalid threshold, got %v", err)
	}
	mustLink(t, engine, id(1), id(2), DependencyPartial, 2_500)
	escrows[id(1)].PayeePaid = big.NewInt(249)
	if ok, _ := engine.CanRelease(id(2)); ok {
		t.Fatalf("threshold not yet reached")
	}
	escrows[id(1)].PayeePaid = big.NewInt(250)
	if ok, _ := engine.CanRelease(id(2)); !ok {
		t.Fatalf("threshold reached at 25%%")
	}
}

func TestMilestoneEdge(t *testing.T) {
	engine, _, _ := newTestEngine(t, 2)
	mustLink(t, engine, id(1), id(2), DependencyMilestone, 0)
	if ok, _ := engine.CanRelease(id(2)); ok {
		t.Fatalf("milestone not yet set")
	}
	if err := engine.MarkMilestone(id(1), [20]byte{0x01}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.MarkMilestone(id(1), arbiter); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := engine.MarkMilestone(id(1), arbiter); !errors.Is(err, ErrMilestoneSet) {
		t.Fatalf("expected already set, got %v", err)
	}
	if ok, _ := engine.CanRelease(id(2)); !ok {
		t.Fatalf("expected child releasable after milestone")
	}
}

func TestLinkRejections(t *testing.T) {
	engine, state, _ := newTestEngine(t, 3)
	mustLink(t, engine, id(1), id(2), DependencyRelease, 0)
	mustLink(t, engine, id(2), id(3), DependencyRelease, 0)

	cases := []struct {
		name   string
		parent [32]byte
		child  [32]byte
		want   error
	}{
		{name: "unknown parent", parent: id(9), child: id(1), want: ErrUnknownEscrow},
		{name: "unknown child", parent: id(1), child: id(9), want: ErrUnknownEscrow},
		{name: "self", parent: id(1), child: id(1), want: ErrCycleDetected},
		{name: "duplicate", parent: id(1), child: id(2), want: ErrAlreadyLinked},
		{name: "direct cycle", parent: id(2), child: id(1), want: ErrCycleDetected},
		{name: "transitive cycle", parent: id(3), child: id(1), want: ErrCycleDetected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(state.nodes)
			if _, err := engine.Link(tc.parent, tc.child, DependencyRelease, 0); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(state.nodes) != before {
				t.Fatalf("rejected link mutated graph")
			}
		})
	}
	if _, err := engine.Link(id(1), id(3), DependencyType(9), 0); !errors.Is(err, ErrInvalidDependency) {
		t.Fatalf("expected invalid dependency, got %v", err)
	}
}

func TestChainTooDeep(t *testing.T) {
	engine, _, _ := newTestEngine(t, 6)
	engine.SetMaxDepth(3)
	mustLink(t, engine, id(1), id(2), DependencyRelease, 0)
	mustLink(t, engine, id(2), id(3), DependencyRelease, 0)
	mustLink(t, engine, id(3), id(4), DependencyRelease, 0)
	if _, err := engine.Link(id(4), id(5), DependencyRelease, 0); !errors.Is(err, ErrChainTooDeep) {
		t.Fatalf("expected too deep, got %v", err)
	}
	mustLink(t, engine, id(5), id(6), DependencyRelease, 0)
	if _, err := engine.Link(id(3), id(5), DependencyRelease, 0); !errors.Is(err, ErrChainTooDeep) {
		t.Fatalf("expected too deep when joining subtrees, got %v", err)
	}
}

func TestTraversalAndRemoval(t *testing.T) {
	engine, state, _ := newTestEngine(t, 5)
	mustLink(t, engine, id(1), id(2), DependencyRelease, 0)
	mustLink(t, engine, id(1), id(3), DependencyRelease, 0)
	mustLink(t, engine, id(2), id(4), DependencyRelease, 0)
	mustLink(t, engine, id(3), id(4), DependencyRelease, 0)

	desc, err := engine.Descendants(id(1))
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(desc) != 3 {
		t.Fatalf("expected 3 descendants, got %d", len(desc))
	}
	anc, err := engine.Ancestors(id(4))
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(anc) != 3 {
		t.Fatalf("expected 3 ancestors, got %d", len(anc))
	}

	if _, err := engine.RemoveChain(id(5)); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected not linked, got %v", err)
	}
	removed, err := engine.RemoveChain(id(4))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 edges removed, got %d", removed)
	}
	if len(state.nodes) != 0 {
		t.Fatalf("expected empty graph, %d nodes left", len(state.nodes))
	}
	if ok, _ := engine.CanRelease(id(4)); !ok {
		t.Fatalf("unlinked escrow must be releasable")
	}
}

func TestParseDependencyType(t *testing.T) {
	for in, want := range map[string]DependencyType{"release": DependencyRelease, "Partial": DependencyPartial, " milestone ": DependencyMilestone} {
		got, err := ParseDependencyType(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v err %v", in, got, err)
		}
	}
	if _, err := ParseDependencyType("sequential"); !errors.Is(err, ErrInvalidDependency) {
		t.Fatalf("expected invalid dependency, got %v", err)
	}
}
