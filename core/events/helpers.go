package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// FormatAmount renders a nil-safe decimal amount.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatAddress renders a party address in checksummed hex.
func FormatAddress(addr [20]byte) string {
	return common.BytesToAddress(addr[:]).Hex()
}

// FormatID renders a 32-byte record identifier as lowercase hex.
func FormatID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

// FormatInt renders a signed integer attribute.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
