package reputation

import (
	"strconv"
	"strings"

	"trustescrow/core/events"
	"trustescrow/core/types"
)

const (
	// EventTypeAgentRegistered is emitted when an address registers a profile.
	EventTypeAgentRegistered = "reputation.registered"
	// EventTypeScoreUpdated is emitted after every recomputation.
	EventTypeScoreUpdated = "reputation.updated"
)

type reputationEvent struct {
	evt *types.Event
}

func (e reputationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e reputationEvent) Event() *types.Event { return e.evt }

// NewRegisteredEvent returns the canonical event payload for a registration.
func NewRegisteredEvent(p *Profile) *types.Event {
	evt := newProfileEvent(EventTypeAgentRegistered, p)
	if p != nil && p.Name != "" {
		evt.Attributes["name"] = p.Name
	}
	return evt
}

// NewScoreUpdatedEvent returns the payload describing a recomputed score.
// reason names the outcome that triggered it.
func NewScoreUpdatedEvent(p *Profile, previous uint8, reason string) *types.Event {
	evt := newProfileEvent(EventTypeScoreUpdated, p)
	evt.Attributes["previousScore"] = strconv.FormatUint(uint64(previous), 10)
	evt.Attributes["reason"] = reason
	return evt
}

func newProfileEvent(eventType string, p *Profile) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["address"] = events.FormatAddress(p.Address)
	attrs["score"] = strconv.FormatUint(uint64(p.Score), 10)
	attrs["tier"] = string(p.Tier())
	if len(p.Badges) > 0 {
		attrs["badges"] = strings.Join(p.Badges, ",")
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
