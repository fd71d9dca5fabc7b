package chain

import (
	"strconv"

	"trustescrow/core/events"
	"trustescrow/core/types"
)

const (
	EventTypeChainLinked      = "chain.linked"
	EventTypeChainRemoved     = "chain.removed"
	EventTypeMilestoneReached = "chain.milestone_reached"
)

type chainEvent struct {
	evt *types.Event
}

func (e chainEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e chainEvent) Event() *types.Event { return e.evt }

func NewLinkedEvent(edge Edge) *types.Event {
	attrs := map[string]string{
		"parentId":  events.FormatID(edge.Parent),
		"childId":   events.FormatID(edge.Child),
		"type":      edge.Type.String(),
		"createdAt": events.FormatInt(edge.CreatedAt),
	}
	if edge.Type == DependencyPartial {
		attrs["thresholdBps"] = strconv.FormatUint(uint64(edge.ThresholdBps), 10)
	}
	return &types.Event{Type: EventTypeChainLinked, Attributes: attrs}
}

func NewRemovedEvent(root [32]byte, edges int) *types.Event {
	return &types.Event{Type: EventTypeChainRemoved, Attributes: map[string]string{
		"rootId": events.FormatID(root),
		"edges":  strconv.Itoa(edges),
	}}
}

func NewMilestoneEvent(id [32]byte, caller [20]byte) *types.Event {
	return &types.Event{Type: EventTypeMilestoneReached, Attributes: map[string]string{
		"id":     events.FormatID(id),
		"caller": events.FormatAddress(caller),
	}}
}
