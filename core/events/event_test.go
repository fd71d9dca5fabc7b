package events

import (
	"math/big"
	"testing"

	"trustescrow/core/types"
)

type sampleEvent struct{ amount *big.Int }

func (sampleEvent) EventType() string { return "sample" }

func (s sampleEvent) Event() *types.Event {
	return &types.Event{Type: "sample", Attributes: map[string]string{"amount": FormatAmount(s.amount)}}
}

type untypedEvent struct{}

func (untypedEvent) EventType() string { return "untyped" }

func TestBufferCollectsTypedEventsInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(sampleEvent{amount: big.NewInt(1)})
	buf.Emit(untypedEvent{})
	buf.Emit(sampleEvent{})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	drained := buf.Drain()
	if drained[0].Attributes["amount"] != "1" || drained[1].Attributes["amount"] != "0" {
		t.Fatalf("unexpected payloads: %+v", drained)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffer to be empty after drain")
	}
}

func TestFormatAddressChecksums(t *testing.T) {
	var addr [20]byte
	addr[19] = 0xab
	got := FormatAddress(addr)
	if len(got) != 42 || got[:2] != "0x" {
		t.Fatalf("unexpected address rendering %s", got)
	}
}
