package state

import (
	"fmt"
	"math/big"

	"trustescrow/native/stream"
)

type storedStream struct {
	ID             [32]byte
	Sender         [20]byte
	Receiver       [20]byte
	RatePerSecond  *big.Int
	Budget         *big.Int
	StartTime      uint64
	Withdrawn      *big.Int
	Status         uint8
	FrozenStreamed *big.Int
	CancelledAt    uint64
	CompletedAt    uint64
	LastObserved   uint64
}

// StreamPut stores the stream record.
func (tx *Tx) StreamPut(s *stream.Stream) error {
	if s == nil {
		return fmt.Errorf("nil stream")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid stream status: %d", s.Status)
	}
	return tx.KVPut(StreamKey(s.ID), &storedStream{
		ID:             s.ID,
		Sender:         s.Sender,
		Receiver:       s.Receiver,
		RatePerSecond:  bigOrZero(s.RatePerSecond),
		Budget:         bigOrZero(s.Budget),
		StartTime:      toUnix(s.StartTime),
		Withdrawn:      bigOrZero(s.Withdrawn),
		Status:         uint8(s.Status),
		FrozenStreamed: bigOrZero(s.FrozenStreamed),
		CancelledAt:    toUnix(s.CancelledAt),
		CompletedAt:    toUnix(s.CompletedAt),
		LastObserved:   toUnix(s.LastObserved),
	})
}

// StreamGet loads the stream record for id.
func (tx *Tx) StreamGet(id [32]byte) (*stream.Stream, bool, error) {
	var stored storedStream
	ok, err := tx.KVGet(StreamKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &stream.Stream{
		ID:             stored.ID,
		Sender:         stored.Sender,
		Receiver:       stored.Receiver,
		RatePerSecond:  bigOrZero(stored.RatePerSecond),
		Budget:         bigOrZero(stored.Budget),
		StartTime:      fromUnix(stored.StartTime),
		Withdrawn:      bigOrZero(stored.Withdrawn),
		Status:         stream.Status(stored.Status),
		FrozenStreamed: bigOrZero(stored.FrozenStreamed),
		CancelledAt:    fromUnix(stored.CancelledAt),
		CompletedAt:    fromUnix(stored.CompletedAt),
		LastObserved:   fromUnix(stored.LastObserved),
	}
	if !out.Status.Valid() {
		return nil, false, fmt.Errorf("stream %x: invalid status %d", id, stored.Status)
	}
	return out, true, nil
}
