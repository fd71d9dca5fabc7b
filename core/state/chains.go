package state

import (
	"fmt"

	"trustescrow/native/chain"
)

type storedEdge struct {
	Parent       [32]byte
	Child        [32]byte
	Type         uint8
	ThresholdBps uint32
	CreatedAt    uint64
}

type storedNode struct {
	ID       [32]byte
	Parents  []storedEdge
	Children [][32]byte
}

// ChainNodePut stores the dependency node of an escrow.
func (tx *Tx) ChainNodePut(n *chain.Node) error {
	if n == nil {
		return fmt.Errorf("nil chain node")
	}
	stored := &storedNode{ID: n.ID, Children: append([][32]byte(nil), n.Children...)}
	for _, edge := range n.Parents {
		stored.Parents = append(stored.Parents, storedEdge{
			Parent:       edge.Parent,
			Child:        edge.Child,
			Type:         uint8(edge.Type),
			ThresholdBps: edge.ThresholdBps,
			CreatedAt:    toUnix(edge.CreatedAt),
		})
	}
	return tx.KVPut(ChainNodeKey(n.ID), stored)
}

// ChainNodeGet loads the dependency node of id.
func (tx *Tx) ChainNodeGet(id [32]byte) (*chain.Node, bool, error) {
	var stored storedNode
	ok, err := tx.KVGet(ChainNodeKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	node := &chain.Node{ID: stored.ID}
	if len(stored.Children) > 0 {
		node.Children = append([][32]byte(nil), stored.Children...)
	}
	for _, edge := range stored.Parents {
		typ := chain.DependencyType(edge.Type)
		if !typ.Valid() {
			return nil, false, fmt.Errorf("chain node %x: invalid dependency type %d", id, edge.Type)
		}
		node.Parents = append(node.Parents, chain.Edge{
			Parent:       edge.Parent,
			Child:        edge.Child,
			Type:         typ,
			ThresholdBps: edge.ThresholdBps,
			CreatedAt:    fromUnix(edge.CreatedAt),
		})
	}
	return node, true, nil
}

// ChainNodeDelete removes the dependency node of id.
func (tx *Tx) ChainNodeDelete(id [32]byte) error {
	return tx.KVDelete(ChainNodeKey(id))
}

// MilestoneGet reports whether the milestone flag of id is set.
func (tx *Tx) MilestoneGet(id [32]byte) (bool, error) {
	var reached bool
	ok, err := tx.KVGet(MilestoneKey(id), &reached)
	if err != nil {
		return false, err
	}
	return ok && reached, nil
}

// MilestonePut sets the milestone flag of id.
func (tx *Tx) MilestonePut(id [32]byte) error {
	return tx.KVPut(MilestoneKey(id), true)
}
