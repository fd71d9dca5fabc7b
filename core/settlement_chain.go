package core

import (
	"context"

	"trustescrow/native/chain"
)

// Link adds a dependency edge from parent to child.
func (s *Settlement) Link(ctx context.Context, parent, child [32]byte, depType chain.DependencyType, thresholdBps uint32) (*chain.Edge, error) {
	keys := []string{chainLockKey, escrowLockKey(parent), escrowLockKey(child)}
	var out *chain.Edge
	err := s.mutate(ctx, "chain.link", moduleChain, keys, func(e *engines) error {
		edge, err := e.chain.Link(parent, child, depType, thresholdBps)
		if err != nil {
			return err
		}
		out = edge
		return nil
	})
	return out, err
}

// CanRelease reports whether every dependency of child is satisfied.
func (s *Settlement) CanRelease(ctx context.Context, child [32]byte) (bool, error) {
	var ok bool
	err := s.view(ctx, "chain.can_release", func(e *engines) error {
		var err error
		ok, err = e.chain.CanRelease(child)
		return err
	})
	return ok, err
}

// ChainNode returns the dependency edges recorded for id.
func (s *Settlement) ChainNode(ctx context.Context, id [32]byte) (*chain.Node, error) {
	var out *chain.Node
	err := s.view(ctx, "chain.node", func(e *engines) error {
		node, err := e.chain.Node(id)
		if err != nil {
			return err
		}
		out = node
		return nil
	})
	return out, err
}

// Ancestors lists every escrow id upstream of id.
func (s *Settlement) Ancestors(ctx context.Context, id [32]byte) ([][32]byte, error) {
	var out [][32]byte
	err := s.view(ctx, "chain.ancestors", func(e *engines) error {
		var err error
		out, err = e.chain.Ancestors(id)
		return err
	})
	return out, err
}

// Descendants lists every escrow id downstream of id.
func (s *Settlement) Descendants(ctx context.Context, id [32]byte) ([][32]byte, error) {
	var out [][32]byte
	err := s.view(ctx, "chain.descendants", func(e *engines) error {
		var err error
		out, err = e.chain.Descendants(id)
		return err
	})
	return out, err
}

// MarkMilestone records that the milestone of id has been reached.
func (s *Settlement) MarkMilestone(ctx context.Context, id [32]byte, caller [20]byte) error {
	keys := []string{chainLockKey, escrowLockKey(id)}
	return s.mutate(ctx, "chain.milestone", moduleChain, keys, func(e *engines) error {
		return e.chain.MarkMilestone(id, caller)
	})
}

// RemoveChain drops every edge reachable from root and returns the number of
// edges removed. Escrow records are untouched.
func (s *Settlement) RemoveChain(ctx context.Context, root [32]byte) (int, error) {
	var removed int
	err := s.mutate(ctx, "chain.remove", moduleChain, []string{chainLockKey}, func(e *engines) error {
		var err error
		removed, err = e.chain.RemoveChain(root)
		return err
	})
	return removed, err
}
