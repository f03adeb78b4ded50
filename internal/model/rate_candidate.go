package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateCandidate is the input for a new ledger row. Amounts are human-scale;
// the ledger converts them to wei and derives the rates.
type RateCandidate struct {
	ChainID              uint64
	Asset                string
	RestakingToken       string
	AssetBalance         decimal.Decimal
	RestakingTokenSupply decimal.Decimal
	BlockNumber          uint64
	Timestamp            time.Time
	PreviousExchangeRate decimal.Decimal
	PreviousTimestamp    *time.Time
}

// Baseline fills the previous-rate fields from the last written entry.
func (c RateCandidate) Baseline(prev RateEntry) RateCandidate {
	ts := prev.Timestamp
	c.PreviousExchangeRate = prev.ExchangeRate
	c.PreviousTimestamp = &ts
	return c
}
