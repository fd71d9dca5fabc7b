package stream

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// RateScale is the fixed-point denominator of RatePerSecond. A stream paying
// 0.05 units per second carries RatePerSecond = 5e16.
var RateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var rateScale256 = uint256.MustFromBig(RateScale)

// Status enumerates the lifecycle of a stream.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCancelled
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCancelled || s == StatusCompleted
}

// Stream is a continuous payment of Budget from Sender to Receiver at
// RatePerSecond (scaled by RateScale). The streamed amount is never stored
// while the stream is active; it is evaluated from the clock on demand.
type Stream struct {
	ID            [32]byte
	Sender        [20]byte
	Receiver      [20]byte
	RatePerSecond *big.Int
	Budget        *big.Int
	StartTime     int64
	Withdrawn     *big.Int
	Status        Status
	// FrozenStreamed holds the entitlement fixed at cancellation.
	FrozenStreamed *big.Int
	CancelledAt    int64
	CompletedAt    int64
	// LastObserved is the latest instant a mutation was applied at.
	LastObserved int64
}

// Clone returns a deep copy of the stream.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	clone := *s
	clone.RatePerSecond = cloneBigInt(s.RatePerSecond)
	clone.Budget = cloneBigInt(s.Budget)
	clone.Withdrawn = cloneBigInt(s.Withdrawn)
	clone.FrozenStreamed = cloneBigInt(s.FrozenStreamed)
	return &clone
}

// Snapshot is the derived view of a stream at a given instant.
type Snapshot struct {
	Streamed     *big.Int
	Withdrawable *big.Int
	Remaining    *big.Int
	Elapsed      int64
	Status       Status
	At           int64
}

// observe clamps t so reads never travel behind the last applied mutation.
func (s *Stream) observe(t int64) int64 {
	if t < s.LastObserved {
		return s.LastObserved
	}
	return t
}

// StreamedAt returns min(budget, rate*(t-start)). Cancelled streams report the
// entitlement frozen at cancellation and completed streams the full budget.
func (s *Stream) StreamedAt(t int64) *big.Int {
	budget := cloneBigInt(s.Budget)
	switch s.Status {
	case StatusCancelled:
		return cloneBigInt(s.FrozenStreamed)
	case StatusCompleted:
		return budget
	}
	t = s.observe(t)
	elapsed := t - s.StartTime
	if elapsed <= 0 || s.RatePerSecond == nil || s.RatePerSecond.Sign() <= 0 {
		return big.NewInt(0)
	}
	rate, overflow := uint256.FromBig(s.RatePerSecond)
	if overflow {
		return budget
	}
	product, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(uint64(elapsed)))
	if overflow {
		return budget
	}
	accrued := new(uint256.Int).Div(product, rateScale256).ToBig()
	if accrued.Cmp(budget) > 0 {
		return budget
	}
	return accrued
}

// SnapshotAt evaluates the derived quantities at t.
func (s *Stream) SnapshotAt(t int64) *Snapshot {
	t = s.observe(t)
	streamed := s.StreamedAt(t)
	withdrawable := new(big.Int).Sub(streamed, cloneBigInt(s.Withdrawn))
	if withdrawable.Sign() < 0 {
		withdrawable = big.NewInt(0)
	}
	end := t
	switch s.Status {
	case StatusCancelled:
		end = s.CancelledAt
	case StatusCompleted:
		end = s.CompletedAt
	}
	elapsed := end - s.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	return &Snapshot{
		Streamed:     streamed,
		Withdrawable: withdrawable,
		Remaining:    new(big.Int).Sub(cloneBigInt(s.Budget), streamed),
		Elapsed:      elapsed,
		Status:       s.Status,
		At:           t,
	}
}

// CheckInvariants validates withdrawn <= streamed <= budget at t.
func (s *Stream) CheckInvariants(t int64) error {
	if s == nil {
		return fmt.Errorf("nil stream")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid status %d", s.Status)
	}
	if s.Budget == nil || s.Budget.Sign() <= 0 {
		return fmt.Errorf("budget must be positive")
	}
	streamed := s.StreamedAt(t)
	if streamed.Cmp(s.Budget) > 0 {
		return fmt.Errorf("streamed %s exceeds budget %s", streamed, s.Budget)
	}
	if cloneBigInt(s.Withdrawn).Cmp(streamed) > 0 {
		return fmt.Errorf("withdrawn %s exceeds streamed %s", s.Withdrawn, streamed)
	}
	return nil
}

// DeriveID returns the content-derived identifier of a stream.
func DeriveID(sender, receiver [20]byte, rate, budget *big.Int, nonce uint64) [32]byte {
	var nonceBuf [8]byte
	for i := 7; i >= 0; i-- {
		nonceBuf[i] = byte(nonce >> (8 * (7 - i)))
	}
	return ethcrypto.Keccak256Hash([]byte("stream"), sender[:], receiver[:], cloneBigInt(rate).Bytes(), cloneBigInt(budget).Bytes(), nonceBuf[:])
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
