package core

import (
	"context"
	"math/big"

	"trustescrow/native/stream"
)

// StartStreamParams describes a new payment stream. A zero ID asks the engine
// to derive one.
type StartStreamParams struct {
	ID            [32]byte
	Sender        [20]byte
	Receiver      [20]byte
	RatePerSecond *big.Int
	Budget        *big.Int
}

// StartStream locks the budget from the sender and starts accrual now.
func (s *Settlement) StartStream(ctx context.Context, p StartStreamParams) (*stream.Stream, error) {
	keys := []string{accountLockKey(p.Sender), accountLockKey(p.Receiver)}
	if p.ID != ([32]byte{}) {
		keys = append(keys, streamLockKey(p.ID))
	}
	var out *stream.Stream
	err := s.mutate(ctx, "stream.start", moduleStream, keys, func(e *engines) error {
		st, err := e.stream.Start(p.ID, p.Sender, p.Receiver, p.RatePerSecond, p.Budget)
		if err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// Stream returns the committed stream record.
func (s *Settlement) Stream(ctx context.Context, id [32]byte) (*stream.Stream, error) {
	var out *stream.Stream
	err := s.view(ctx, "stream.get", func(e *engines) error {
		st, err := e.stream.Get(id)
		if err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// StreamStatus reports the accrual state at the current instant. A stream
// found exhausted is persisted as completed.
func (s *Settlement) StreamStatus(ctx context.Context, id [32]byte) (*stream.Snapshot, error) {
	now := s.now()
	var (
		snap   *stream.Snapshot
		stored *stream.Stream
	)
	err := s.view(ctx, "stream.status", func(e *engines) error {
		var err error
		if stored, err = e.stream.Get(id); err != nil {
			return err
		}
		snap, err = e.stream.Status(id, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if stored.Status == stream.StatusActive && snap.Status == stream.StatusCompleted {
		keys := []string{streamLockKey(id), accountLockKey(stored.Sender), accountLockKey(stored.Receiver)}
		err := s.mutate(ctx, "stream.tick", moduleStream, keys, func(e *engines) error {
			_, _, err := e.stream.Tick(id, e.now)
			return err
		})
		if err != nil {
			s.logger.WarnContext(ctx, "stream completion not persisted", "error", err)
		}
	}
	return snap, nil
}

// Withdraw pays everything accrued but not yet withdrawn to the receiver.
func (s *Settlement) Withdraw(ctx context.Context, id [32]byte) (*big.Int, *stream.Stream, error) {
	var (
		paid *big.Int
		out  *stream.Stream
	)
	err := s.streamOp(ctx, "stream.withdraw", id, func(e *engines) error {
		var err error
		paid, out, err = e.stream.Withdraw(id, e.now)
		return err
	})
	return paid, out, err
}

// CancelStream freezes accrual and returns the unstreamed budget to the
// sender.
func (s *Settlement) CancelStream(ctx context.Context, id [32]byte, caller [20]byte) (*big.Int, *stream.Stream, error) {
	var (
		refunded *big.Int
		out      *stream.Stream
	)
	err := s.streamOp(ctx, "stream.cancel", id, func(e *engines) error {
		var err error
		refunded, out, err = e.stream.Cancel(id, caller, e.now)
		return err
	})
	return refunded, out, err
}

func (s *Settlement) streamOp(ctx context.Context, op string, id [32]byte, fn func(*engines) error) error {
	st, err := s.Stream(ctx, id)
	if err != nil {
		return err
	}
	keys := []string{streamLockKey(id), accountLockKey(st.Sender), accountLockKey(st.Receiver)}
	return s.mutate(ctx, op, moduleStream, keys, fn)
}
