package escrow

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EscrowStatus represents the lifecycle states supported by the escrow
// engine. Released and Refunded are terminal.
type EscrowStatus uint8

const (
	EscrowNone EscrowStatus = iota
	EscrowFunded
	EscrowReleased
	EscrowRefunded
	EscrowDisputed
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowNone, EscrowFunded, EscrowReleased, EscrowRefunded, EscrowDisputed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

func (s EscrowStatus) String() string {
	switch s {
	case EscrowNone:
		return "None"
	case EscrowFunded:
		return "Funded"
	case EscrowReleased:
		return "Released"
	case EscrowRefunded:
		return "Refunded"
	case EscrowDisputed:
		return "Disputed"
	default:
		return fmt.Sprintf("EscrowStatus(%d)", uint8(s))
	}
}

// ParseStatus maps the canonical status name back to its value.
func ParseStatus(v string) (EscrowStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none":
		return EscrowNone, nil
	case "funded":
		return EscrowFunded, nil
	case "released":
		return EscrowReleased, nil
	case "refunded":
		return EscrowRefunded, nil
	case "disputed":
		return EscrowDisputed, nil
	default:
		return EscrowNone, fmt.Errorf("escrow: unknown status %q", v)
	}
}

// Escrow captures the immutable terms and runtime status of a single custody
// record. Amount never changes once funded; PayeePaid and PayerRefunded
// accumulate the payouts so that at any terminal state
// PayeePaid + PayerRefunded == Amount.
type Escrow struct {
	ID            [32]byte
	Payer         [20]byte
	Payee         [20]byte
	Arbiter       [20]byte
	Amount        *big.Int
	Deadline      int64
	CreatedAt     int64
	MetaHash      [32]byte
	Status        EscrowStatus
	PayeePaid     *big.Int
	PayerRefunded *big.Int
	Delegates     [][20]byte
	DisputedBy    [20]byte
	DisputeReason string
	// ResolvedRatio is the payee percentage applied when a dispute settled
	// the escrow.
	ResolvedRatio uint8
	SettledAt     int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	clone.PayeePaid = cloneBigInt(e.PayeePaid)
	clone.PayerRefunded = cloneBigInt(e.PayerRefunded)
	if len(e.Delegates) > 0 {
		clone.Delegates = make([][20]byte, len(e.Delegates))
		copy(clone.Delegates, e.Delegates)
	}
	return &clone
}

// Remaining returns the custody balance that has not been paid out yet.
func (e *Escrow) Remaining() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	out := cloneBigInt(e.Amount)
	out.Sub(out, cloneBigInt(e.PayeePaid))
	out.Sub(out, cloneBigInt(e.PayerRefunded))
	return out
}

// IsDelegate reports whether addr may act with the arbiter's authority.
func (e *Escrow) IsDelegate(addr [20]byte) bool {
	if e == nil {
		return false
	}
	for _, d := range e.Delegates {
		if d == addr {
			return true
		}
	}
	return false
}

// Arbitrates reports whether addr is the arbiter or one of its delegates.
func (e *Escrow) Arbitrates(addr [20]byte) bool {
	if e == nil || addr == ([20]byte{}) {
		return false
	}
	return addr == e.Arbiter || e.IsDelegate(addr)
}

// CheckInvariants validates the conservation rules of the record.
func (e *Escrow) CheckInvariants() error {
	if e == nil {
		return fmt.Errorf("nil escrow")
	}
	if e.Amount == nil || e.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if cloneBigInt(e.PayeePaid).Sign() < 0 || cloneBigInt(e.PayerRefunded).Sign() < 0 {
		return fmt.Errorf("negative payout")
	}
	if e.Remaining().Sign() < 0 {
		return fmt.Errorf("payouts exceed amount")
	}
	if e.Status.Terminal() && e.Remaining().Sign() != 0 {
		return fmt.Errorf("terminal escrow still holds %s", e.Remaining())
	}
	return nil
}

// SanitizeEscrow validates and normalises the supplied escrow definition,
// returning a cloned instance with non-nil amount fields. The function does
// not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

// DeriveID computes the content-derived identifier used when callers do not
// supply their own. The nonce keeps repeated agreements between the same
// parties distinct.
func DeriveID(payer, payee, arbiter [20]byte, amount *big.Int, deadline int64, nonce uint64, metaHash [32]byte) [32]byte {
	amt := cloneBigInt(amount)
	var deadlineBuf, nonceBuf [8]byte
	putUint64(deadlineBuf[:], uint64(deadline))
	putUint64(nonceBuf[:], nonce)
	return ethcrypto.Keccak256Hash(payer[:], payee[:], arbiter[:], amt.Bytes(), deadlineBuf[:], nonceBuf[:], metaHash[:])
}

func putUint64(buf []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
