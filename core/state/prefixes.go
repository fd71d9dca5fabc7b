package state

var (
	accountPrefix   = []byte("account/")
	escrowPrefix    = []byte("escrow/record/")
	streamPrefix    = []byte("stream/record/")
	chainNodePrefix = []byte("chain/node/")
	milestonePrefix = []byte("chain/milestone/")
	disputePrefix   = []byte("arbitration/case/")
)

func prefixedKey(prefix []byte, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}

// AccountKey returns the state key for the account of addr.
func AccountKey(addr [20]byte) []byte { return prefixedKey(accountPrefix, addr[:]) }

// EscrowKey returns the state key for an escrow record.
func EscrowKey(id [32]byte) []byte { return prefixedKey(escrowPrefix, id[:]) }

// StreamKey returns the state key for a stream record.
func StreamKey(id [32]byte) []byte { return prefixedKey(streamPrefix, id[:]) }

// ChainNodeKey returns the state key for the dependency node of an escrow.
func ChainNodeKey(id [32]byte) []byte { return prefixedKey(chainNodePrefix, id[:]) }

// MilestoneKey returns the state key for the milestone flag of an escrow.
func MilestoneKey(id [32]byte) []byte { return prefixedKey(milestonePrefix, id[:]) }

// DisputeKey returns the state key for the arbitration case of an escrow.
func DisputeKey(id [32]byte) []byte { return prefixedKey(disputePrefix, id[:]) }
