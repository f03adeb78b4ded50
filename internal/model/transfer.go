package model

import (
	"math/big"
	"strings"
	"time"
)

// TransferRecord is a mint or burn transfer of a restaking token.
type TransferRecord struct {
	ChainID     uint64
	Token       string
	TxHash      string
	LogIndex    uint64
	From        string
	To          string
	Value       *big.Int
	BlockNumber uint64
	Timestamp   time.Time
}

// IsMint reports whether the transfer was issued from the zero address.
func (t TransferRecord) IsMint() bool {
	return strings.EqualFold(t.From, ZeroAddress)
}

// IsBurn reports whether the transfer was sent to the zero address.
func (t TransferRecord) IsBurn() bool {
	return strings.EqualFold(t.To, ZeroAddress)
}

// ZeroAddress is the mint/burn sentinel in hex form.
const ZeroAddress = "0x0000000000000000000000000000000000000000"
