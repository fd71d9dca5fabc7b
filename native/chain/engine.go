package chain

import (
	"errors"
	"math/big"
	"time"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
	"trustescrow/native/escrow"
)

// DefaultMaxDepth bounds the longest root-to-leaf path of a chain.
const DefaultMaxDepth = 16

type engineState interface {
	ChainNodeGet(id [32]byte) (*Node, bool, error)
	ChainNodePut(*Node) error
	ChainNodeDelete(id [32]byte) error
	MilestoneGet(id [32]byte) (bool, error)
	MilestonePut(id [32]byte) error
}

// EscrowLookup resolves escrow records referenced by edges.
type EscrowLookup interface {
	Get(id [32]byte) (*escrow.Escrow, error)
}

// Engine maintains the parent/child dependency graph between escrows and
// answers release gating queries.
type Engine struct {
	state    engineState
	escrows  EscrowLookup
	emitter  events.Emitter
	maxDepth int
	nowFn    func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		maxDepth: DefaultMaxDepth,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetEscrows(lookup EscrowLookup) { e.escrows = lookup }

// SetMaxDepth overrides the maximum chain depth. Non-positive values restore
// the default.
func (e *Engine) SetMaxDepth(depth int) {
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	e.maxDepth = depth
}

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
	e.emitter.Emit(chainEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.escrows == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) node(id [32]byte) (*Node, error) {
	n, ok, err := e.state.ChainNodeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Node{ID: id}, nil
	}
	return n, nil
}

func (e *Engine) lookup(id [32]byte) (*escrow.Escrow, error) {
	esc, err := e.escrows.Get(id)
	if errors.Is(err, escrow.ErrEscrowNotFound) {
		return nil, common.Wrapf(ErrUnknownEscrow, "%x", id)
	}
	return esc, err
}

// Link stores an edge making child depend on parent. thresholdBps is only
// meaningful for partial edges.
func (e *Engine) Link(parent, child [32]byte, depType DependencyType, thresholdBps uint32) (*Edge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !depType.Valid() {
		return nil, ErrInvalidDependency
	}
	if depType == DependencyPartial {
		if thresholdBps == 0 || thresholdBps > MaxThresholdBps {
			return nil, ErrInvalidThreshold
		}
	} else {
		thresholdBps = 0
	}
	if _, err := e.lookup(parent); err != nil {
		return nil, err
	}
	if _, err := e.lookup(child); err != nil {
		return nil, err
	}
	if parent == child {
		return nil, ErrCycleDetected
	}
	childNode, err := e.node(child)
	if err != nil {
		return nil, err
	}
	if childNode.hasParent(parent) {
		return nil, ErrAlreadyLinked
	}
	ancestors, err := e.Ancestors(parent)
	if err != nil {
		return nil, err
	}
	for _, id := range ancestors {
		if id == child {
			return nil, ErrCycleDetected
		}
	}
	above, err := e.height(parent, true, 0, make(map[[32]byte]int))
	if err != nil {
		return nil, err
	}
	below, err := e.height(child, false, 0, make(map[[32]byte]int))
	if err != nil {
		return nil, err
	}
	if above+1+below > e.maxDepth {
		return nil, common.Wrapf(ErrChainTooDeep, "depth %d exceeds %d", above+1+below, e.maxDepth)
	}
	parentNode, err := e.node(parent)
	if err != nil {
		return nil, err
	}
	edge := Edge{Parent: parent, Child: child, Type: depType, ThresholdBps: thresholdBps, CreatedAt: e.now()}
	childNode.Parents = append(childNode.Parents, edge)
	parentNode.Children = append(parentNode.Children, child)
	if err := e.state.ChainNodePut(childNode); err != nil {
		return nil, err
	}
	if err := e.state.ChainNodePut(parentNode); err != nil {
		return nil, err
	}
	e.emit(NewLinkedEvent(edge))
	return &edge, nil
}

// height returns the longest path, in edges, from id towards the roots (up)
// or the leaves (down).
func (e *Engine) height(id [32]byte, up bool, depth int, memo map[[32]byte]int) (int, error) {
	if depth > e.maxDepth {
		return 0, common.Wrapf(ErrChainTooDeep, "depth exceeds %d", e.maxDepth)
	}
	if h, ok := memo[id]; ok {
		return h, nil
	}
	n, err := e.node(id)
	if err != nil {
		return 0, err
	}
	var next [][32]byte
	if up {
		for _, edge := range n.Parents {
			next = append(next, edge.Parent)
		}
	} else {
		next = n.Children
	}
	best := 0
	for _, other := range next {
		h, err := e.height(other, up, depth+1, memo)
		if err != nil {
			return 0, err
		}
		if h+1 > best {
			best = h + 1
		}
	}
	memo[id] = best
	return best, nil
}

func (e *Engine) walk(start [32]byte, up bool) ([][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	seen := map[[32]byte]bool{start: true}
	queue := [][32]byte{start}
	var out [][32]byte
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, err := e.node(id)
		if err != nil {
			return nil, err
		}
		var next [][32]byte
		if up {
			for _, edge := range n.Parents {
				next = append(next, edge.Parent)
			}
		} else {
			next = n.Children
		}
		for _, candidate := range next {
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			out = append(out, candidate)
			queue = append(queue, candidate)
		}
	}
	return out, nil
}

// Ancestors returns every escrow the given one transitively depends on, in
// breadth-first order.
func (e *Engine) Ancestors(id [32]byte) ([][32]byte, error) { return e.walk(id, true) }

// Descendants returns every escrow transitively gated by the given one.
func (e *Engine) Descendants(id [32]byte) ([][32]byte, error) { return e.walk(id, false) }

// Node returns the adjacency of id. Escrows outside any chain yield an empty
// node.
func (e *Engine) Node(id [32]byte) (*Node, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	n, err := e.node(id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// CanRelease reports whether every parent edge of child is satisfied.
// Escrows without parents are always releasable.
func (e *Engine) CanRelease(child [32]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	n, err := e.node(child)
	if err != nil {
		return false, err
	}
	for _, edge := range n.Parents {
		ok, err := e.satisfied(edge)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) satisfied(edge Edge) (bool, error) {
	if edge.Type == DependencyMilestone {
		return e.state.MilestoneGet(edge.Parent)
	}
	parent, err := e.lookup(edge.Parent)
	if err != nil {
		return false, err
	}
	if parent.Status == escrow.EscrowReleased {
		return true, nil
	}
	if edge.Type != DependencyPartial {
		return false, nil
	}
	paid := new(big.Int).Mul(parent.PayeePaid, big.NewInt(MaxThresholdBps))
	required := new(big.Int).Mul(parent.Amount, big.NewInt(int64(edge.ThresholdBps)))
	return paid.Cmp(required) >= 0, nil
}

// MarkMilestone sets the milestone flag of an escrow. The escrow's arbiter or
// one of its delegates attests the milestone.
func (e *Engine) MarkMilestone(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !esc.Arbitrates(caller) {
		return ErrUnauthorized
	}
	set, err := e.state.MilestoneGet(id)
	if err != nil {
		return err
	}
	if set {
		return ErrMilestoneSet
	}
	if err := e.state.MilestonePut(id); err != nil {
		return err
	}
	e.emit(NewMilestoneEvent(id, caller))
	return nil
}

// RemoveChain deletes every edge of the chain containing root. Escrow records
// and milestone flags are left untouched.
func (e *Engine) RemoveChain(root [32]byte) (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	start, err := e.node(root)
	if err != nil {
		return 0, err
	}
	if start.empty() {
		return 0, ErrNotLinked
	}
	seen := map[[32]byte]bool{root: true}
	queue := [][32]byte{root}
	edges := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, err := e.node(id)
		if err != nil {
			return 0, err
		}
		edges += len(n.Parents)
		neighbours := append([][32]byte(nil), n.Children...)
		for _, edge := range n.Parents {
			neighbours = append(neighbours, edge.Parent)
		}
		for _, next := range neighbours {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
		if err := e.state.ChainNodeDelete(id); err != nil {
			return 0, err
		}
	}
	e.emit(NewRemovedEvent(root, edges))
	return edges, nil
}
