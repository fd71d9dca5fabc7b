package escrow

import (
	"math/big"
	"strconv"

	"trustescrow/core/events"
	"trustescrow/core/types"
)

const (
	EventTypeEscrowCreated         = "escrow.created"
	EventTypeEscrowReleased        = "escrow.released"
	EventTypeEscrowPartialReleased = "escrow.partial_released"
	EventTypeEscrowRefunded        = "escrow.refunded"
	EventTypeEscrowDisputed        = "escrow.disputed"
	EventTypeEscrowResolved        = "escrow.resolved"
	EventTypeDelegateAdded         = "escrow.delegate_added"
	EventTypeDelegateRevoked       = "escrow.delegate_revoked"
)

// NewCreatedEvent returns the canonical event payload for a newly funded
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewReleasedEvent returns the canonical event payload for a release of escrow
// funds to the payee. paid is the value moved by this release.
func NewReleasedEvent(e *Escrow, paid *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowReleased, e)
	evt.Attributes["paid"] = events.FormatAmount(paid)
	return evt
}

// NewPartialReleasedEvent is emitted when a slice of the custody balance is
// paid to the payee while the escrow stays funded.
func NewPartialReleasedEvent(e *Escrow, paid *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowPartialReleased, e)
	evt.Attributes["paid"] = events.FormatAmount(paid)
	evt.Attributes["remaining"] = events.FormatAmount(e.Remaining())
	return evt
}

// NewRefundedEvent returns the canonical event payload for an escrow refund to
// the payer.
func NewRefundedEvent(e *Escrow, refunded *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowRefunded, e)
	evt.Attributes["refunded"] = events.FormatAmount(refunded)
	return evt
}

// NewDisputedEvent returns the canonical event payload emitted when an escrow is
// marked as disputed.
func NewDisputedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowDisputed, e)
	evt.Attributes["disputedBy"] = events.FormatAddress(e.DisputedBy)
	if e.DisputeReason != "" {
		evt.Attributes["reason"] = e.DisputeReason
	}
	return evt
}

// NewResolvedEvent returns the canonical event payload emitted when a dispute is
// resolved.
func NewResolvedEvent(e *Escrow, toPayee, toPayer *big.Int) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowResolved, e)
	evt.Attributes["ratio"] = strconv.FormatUint(uint64(e.ResolvedRatio), 10)
	evt.Attributes["toPayee"] = events.FormatAmount(toPayee)
	evt.Attributes["toPayer"] = events.FormatAmount(toPayer)
	return evt
}

func NewDelegateEvent(eventType string, e *Escrow, delegate [20]byte) *types.Event {
	evt := newEscrowEvent(eventType, e)
	evt.Attributes["delegate"] = events.FormatAddress(delegate)
	return evt
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = events.FormatID(sanitized.ID)
	attrs["payer"] = events.FormatAddress(sanitized.Payer)
	attrs["payee"] = events.FormatAddress(sanitized.Payee)
	attrs["arbiter"] = events.FormatAddress(sanitized.Arbiter)
	attrs["amount"] = sanitized.Amount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
