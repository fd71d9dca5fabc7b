package stream

import (
	"math/big"

	"trustescrow/core/events"
	"trustescrow/core/types"
)

const (
	EventTypeStreamStarted   = "stream.started"
	EventTypeStreamWithdrawn = "stream.withdrawn"
	EventTypeStreamCancelled = "stream.cancelled"
	EventTypeStreamCompleted = "stream.completed"
)

type streamEvent struct {
	evt *types.Event
}

func (e streamEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e streamEvent) Event() *types.Event { return e.evt }

func NewStartedEvent(s *Stream) *types.Event {
	evt := newStreamEvent(EventTypeStreamStarted, s)
	evt.Attributes["rate"] = FormatRate(s.RatePerSecond)
	return evt
}

func NewWithdrawnEvent(s *Stream, paid *big.Int) *types.Event {
	evt := newStreamEvent(EventTypeStreamWithdrawn, s)
	evt.Attributes["paid"] = events.FormatAmount(paid)
	evt.Attributes["withdrawn"] = events.FormatAmount(s.Withdrawn)
	return evt
}

func NewCancelledEvent(s *Stream, refunded *big.Int) *types.Event {
	evt := newStreamEvent(EventTypeStreamCancelled, s)
	evt.Attributes["streamed"] = events.FormatAmount(s.FrozenStreamed)
	evt.Attributes["refunded"] = events.FormatAmount(refunded)
	evt.Attributes["cancelledAt"] = events.FormatInt(s.CancelledAt)
	return evt
}

func NewCompletedEvent(s *Stream) *types.Event {
	evt := newStreamEvent(EventTypeStreamCompleted, s)
	evt.Attributes["completedAt"] = events.FormatInt(s.CompletedAt)
	return evt
}

func newStreamEvent(eventType string, s *Stream) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = events.FormatID(s.ID)
	attrs["sender"] = events.FormatAddress(s.Sender)
	attrs["receiver"] = events.FormatAddress(s.Receiver)
	attrs["budget"] = events.FormatAmount(s.Budget)
	attrs["status"] = s.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
