package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositSample is a historical deposit used as a price observation.
type DepositSample struct {
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
}
