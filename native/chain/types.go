package chain

import (
	"fmt"
	"strings"
)

// DependencyType selects the completion rule a child observes on its parent.
type DependencyType uint8

const (
	// DependencyRelease requires the parent escrow to be Released.
	DependencyRelease DependencyType = iota + 1
	// DependencyPartial requires the parent to have paid out at least the
	// edge threshold to its payee.
	DependencyPartial
	// DependencyMilestone requires an external milestone flag on the parent.
	DependencyMilestone
)

// MaxThresholdBps is the basis point scale of partial edge thresholds.
const MaxThresholdBps = 10_000

func (t DependencyType) Valid() bool {
	return t == DependencyRelease || t == DependencyPartial || t == DependencyMilestone
}

func (t DependencyType) String() string {
	switch t {
	case DependencyRelease:
		return "release"
	case DependencyPartial:
		return "partial"
	case DependencyMilestone:
		return "milestone"
	default:
		return fmt.Sprintf("dependency(%d)", uint8(t))
	}
}

// ParseDependencyType maps the wire name to its value.
func ParseDependencyType(v string) (DependencyType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "release", "":
		return DependencyRelease, nil
	case "partial":
		return DependencyPartial, nil
	case "milestone":
		return DependencyMilestone, nil
	default:
		return 0, ErrInvalidDependency
	}
}

// Edge links a parent escrow to a child whose release it gates.
type Edge struct {
	Parent       [32]byte
	Child        [32]byte
	Type         DependencyType
	ThresholdBps uint32
	CreatedAt    int64
}

// Node holds the adjacency of a single escrow in the graph.
type Node struct {
	ID       [32]byte
	Parents  []Edge
	Children [][32]byte
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := &Node{ID: n.ID}
	if len(n.Parents) > 0 {
		clone.Parents = append([]Edge(nil), n.Parents...)
	}
	if len(n.Children) > 0 {
		clone.Children = append([][32]byte(nil), n.Children...)
	}
	return clone
}

func (n *Node) hasParent(id [32]byte) bool {
	for _, edge := range n.Parents {
		if edge.Parent == id {
			return true
		}
	}
	return false
}

func (n *Node) empty() bool {
	return len(n.Parents) == 0 && len(n.Children) == 0
}
