package arbitration

import (
	"strconv"

	"trustescrow/core/events"
	"trustescrow/core/types"
)

const (
	EventTypeCaseOpened        = "arbitration.opened"
	EventTypeEvidenceSubmitted = "arbitration.evidence_submitted"
	EventTypeReviewStarted     = "arbitration.review_started"
	EventTypeVerdictRecorded   = "arbitration.verdict"
	EventTypeCaseAppealed      = "arbitration.appealed"
	EventTypeVoteCast          = "arbitration.vote_cast"
	EventTypeCaseResolved      = "arbitration.resolved"
)

type arbitrationEvent struct {
	evt *types.Event
}

func (e arbitrationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e arbitrationEvent) Event() *types.Event { return e.evt }

func newCaseEvent(eventType string, c *Case) *types.Event {
	attrs := make(map[string]string)
	if c == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["escrowId"] = events.FormatID(c.EscrowID)
	attrs["status"] = c.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func NewOpenedEvent(c *Case) *types.Event {
	evt := newCaseEvent(EventTypeCaseOpened, c)
	evt.Attributes["claimant"] = events.FormatAddress(c.Claimant)
	evt.Attributes["respondent"] = events.FormatAddress(c.Respondent)
	return evt
}

func NewEvidenceEvent(c *Case, ev Evidence) *types.Event {
	evt := newCaseEvent(EventTypeEvidenceSubmitted, c)
	evt.Attributes["party"] = ev.Party.String()
	evt.Attributes["digest"] = events.FormatID(ev.Digest)
	return evt
}

func NewReviewStartedEvent(c *Case) *types.Event {
	return newCaseEvent(EventTypeReviewStarted, c)
}

func NewVerdictEvent(c *Case) *types.Event {
	evt := newCaseEvent(EventTypeVerdictRecorded, c)
	if c.Verdict != nil {
		evt.Attributes["decision"] = c.Verdict.Decision.String()
		evt.Attributes["confidenceBps"] = strconv.FormatUint(uint64(c.Verdict.ConfidenceBps), 10)
		evt.Attributes["splitRatio"] = strconv.FormatUint(uint64(c.Verdict.SplitRatio), 10)
	}
	return evt
}

func NewAppealedEvent(c *Case, caller [20]byte) *types.Event {
	evt := newCaseEvent(EventTypeCaseAppealed, c)
	evt.Attributes["caller"] = events.FormatAddress(caller)
	return evt
}

func NewVoteEvent(c *Case, choice Decision) *types.Event {
	evt := newCaseEvent(EventTypeVoteCast, c)
	evt.Attributes["choice"] = choice.String()
	evt.Attributes["release"] = strconv.FormatUint(c.Tally.Release, 10)
	evt.Attributes["refund"] = strconv.FormatUint(c.Tally.Refund, 10)
	evt.Attributes["split"] = strconv.FormatUint(c.Tally.Split, 10)
	return evt
}

func NewResolvedEvent(c *Case) *types.Event {
	evt := newCaseEvent(EventTypeCaseResolved, c)
	evt.Attributes["ratio"] = strconv.FormatUint(uint64(c.FinalRatio), 10)
	evt.Attributes["resolution"] = string(c.Resolution)
	return evt
}
